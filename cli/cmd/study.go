package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/nuralogix/dfx-apiv2-client-go/api"
	"github.com/nuralogix/dfx-apiv2-client-go/cli/config"
	"github.com/nuralogix/dfx-apiv2-client-go/cli/render"
	"github.com/nuralogix/dfx-apiv2-client-go/cli/tui"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// StudyCommand returns the study command with subcommands.
func StudyCommand() *cli.Command {
	return &cli.Command{
		Name:  "study",
		Usage: "List, show and select studies",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List studies",
				Flags: append(ReadOnlyFlags(),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status id",
					},
				),
				Action: studyListAction,
			},
			{
				Name:      "get",
				Usage:     "Show a study (defaults to the selected study)",
				ArgsUsage: "[study-id]",
				Flags:     ReadOnlyFlags(),
				Action:    studyGetAction,
			},
			{
				Name:      "select",
				Usage:     "Select the study used by measure make",
				ArgsUsage: "<study-id>",
				Flags:     ReadOnlyFlags(),
				Action:    studySelectAction,
			},
		},
	}
}

func studyListAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", exitError)
	}

	client, _, err := authedClient(c)
	if err != nil {
		return exit(err)
	}
	studies, err := client.ListStudies(c.Context, c.String("status"))
	if err != nil {
		return exit(err)
	}
	if studies == nil {
		studies = []api.Study{}
	}
	return r.Render(studies)
}

func studyGetAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	client, e, err := authedClient(c)
	if err != nil {
		return exit(err)
	}
	id := c.Args().First()
	if id == "" {
		id = e.store.Credentials().SelectedStudy
	}
	if id == "" {
		return cli.Exit(types.ErrNoStudy.Error()+"; pass a study id or run 'study select'", exitPrecondition)
	}

	study, err := client.RetrieveStudy(c.Context, id)
	if err != nil {
		return exit(err)
	}
	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewStudy, study)
	}
	return r.Render(study)
}

func studySelectAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for study select", exitError)
	}
	id := c.Args().First()
	if id == "" {
		return cli.Exit("study select requires a study id", exitError)
	}

	client, e, err := authedClient(c)
	if err != nil {
		return exit(err)
	}
	// The study must exist before it is stored.
	study, err := client.RetrieveStudy(c.Context, id)
	if err != nil {
		return exit(err)
	}

	e.store.Update(func(cr *config.Credentials) { cr.SelectedStudy = study.ID })
	if err := e.store.Write(); err != nil {
		return exit(err)
	}
	e.logger.Info("study selected", map[string]any{"study_id": study.ID})
	return r.Render(study)
}

// authedClient loads the environment and builds a client that must carry a token.
func authedClient(c *cli.Context) (*api.Client, *env, error) {
	e, err := loadEnv(c)
	if err != nil {
		return nil, nil, err
	}
	client, err := e.client(true)
	if err != nil {
		return nil, nil, err
	}
	return client, e, nil
}

