// Package auth implements session.Authenticator over the gateway.
package auth

import (
	"context"
	"time"

	"github.com/MrEthical07/goAssist/gateway"
	"github.com/MrEthical07/goAssist/session"
)

// InvalidResponseMessage is the message of the error returned when the
// service answers 2xx without a usable credential.
const InvalidResponseMessage = "invalid authentication response"

const (
	loginPath    = "/auth/login"
	registerPath = "/auth/register"
)

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register request body.
type Registration struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName *string `json:"displayName,omitempty"`
}

// Response is the body returned by both auth endpoints.
type Response struct {
	Credential      string  `json:"credential"`
	TTLMilliseconds int64   `json:"ttlMilliseconds"`
	Email           string  `json:"email"`
	DisplayName     *string `json:"displayName"`
}

// Client performs the login and register exchanges. Both are sent without a
// credential, so a 401 from them never invalidates a held session.
type Client struct {
	gw *gateway.Gateway
}

// New creates a Client over gw.
func New(gw *gateway.Gateway) *Client {
	return &Client{gw: gw}
}

// Login implements session.Authenticator.
func (c *Client) Login(ctx context.Context, email, password string) (*session.Grant, error) {
	return c.exchange(ctx, loginPath, Credentials{Email: email, Password: password}, email)
}

// Register implements session.Authenticator.
func (c *Client) Register(ctx context.Context, email, password string, displayName *string) (*session.Grant, error) {
	body := Registration{Email: email, Password: password, DisplayName: displayName}
	return c.exchange(ctx, registerPath, body, email)
}

func (c *Client) exchange(ctx context.Context, path string, body any, email string) (*session.Grant, error) {
	var (
		resp   Response
		status int
	)
	err := c.gw.Post(ctx, path, body, &resp, gateway.WithoutCredential(), gateway.CaptureStatus(&status))
	if err != nil {
		return nil, err
	}
	if resp.Credential == "" || resp.TTLMilliseconds <= 0 {
		return nil, &gateway.Error{Message: InvalidResponseMessage, StatusCode: status}
	}

	// The submitted email is authoritative when the service omits it.
	if resp.Email == "" {
		resp.Email = email
	}
	return &session.Grant{
		Credential: resp.Credential,
		Identity: session.Identity{
			Email:       resp.Email,
			DisplayName: resp.DisplayName,
		},
		TTL: time.Duration(resp.TTLMilliseconds) * time.Millisecond,
	}, nil
}
