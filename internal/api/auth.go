package api

import (
	"context"
	"net/http"
)

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	payload := map[string]string{"email": email, "password": password}
	var response struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/login", payload, nil, &response); err != nil {
		return "", err
	}
	return response.Token, nil
}

// Register creates an account and returns its bearer token.
func (c *Client) Register(ctx context.Context, username, email, password string) (string, error) {
	payload := map[string]string{"username": username, "email": email, "password": password}
	var response struct {
		Token    string `json:"token"`
		Username string `json:"username"`
	}
	if err := c.do(ctx, http.MethodPost, "/register", payload, nil, &response); err != nil {
		return "", err
	}
	return response.Token, nil
}
