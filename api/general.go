package api

import "context"

// Status is the API health report.
type Status struct {
	Version  string `json:"Version" yaml:"version"`
	StatusID string `json:"StatusID" yaml:"status_id"`
}

// TokenInfo describes the token the client authenticates with.
type TokenInfo struct {
	ID             string `json:"ID" yaml:"id"`
	Type           string `json:"Type" yaml:"type"`
	OrganizationID string `json:"OrganizationID" yaml:"organization_id"`
	RoleID         string `json:"RoleID,omitempty" yaml:"role_id,omitempty"`
	UserID         string `json:"UserID,omitempty" yaml:"user_id,omitempty"`
	DeviceID       string `json:"DeviceID,omitempty" yaml:"device_id,omitempty"`
	ActiveLicense  bool   `json:"ActiveLicense" yaml:"active_license"`
}

// Status reports the API status. It needs no token.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.Get(ctx, "status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyToken checks the client's token with the server.
func (c *Client) VerifyToken(ctx context.Context) (*TokenInfo, error) {
	var out TokenInfo
	if err := c.Get(ctx, "auth", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
