// Package asc is a client for the App Store Connect API covering the
// resources a signing pipeline needs: bundle IDs, certificates and
// provisioning profiles.
package asc

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const defaultBaseURL = "https://api.appstoreconnect.apple.com/v1"

var (
	// ErrMissingCredential means a required API credential could not be
	// resolved from parameters, environment or key file.
	ErrMissingCredential = errors.New("missing App Store Connect credential")
	// ErrKeyFormat means the private key material could not be parsed.
	ErrKeyFormat = errors.New("invalid private key format")
	// ErrRemoteAPI wraps a server-reported errors envelope.
	ErrRemoteAPI = errors.New("App Store Connect error")
	// ErrProtocol means the server response broke the expected protocol
	// (runaway pagination cursor, unexpected shape).
	ErrProtocol = errors.New("protocol error")
	// ErrDuplicateResource means the server refused a create because
	// matching resources already exist.
	ErrDuplicateResource = errors.New("duplicate resource")
)

type Errors struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Source any    `json:"source"`
}

type ErrorResponse struct {
	Errors []Errors `json:"errors"`
}

func (e ErrorResponse) detail() string {
	var details []string
	for _, err := range e.Errors {
		details = append(details, err.Detail)
	}
	return strings.Join(details, ", ")
}

type Links struct {
	Self    string `json:"self"`
	Related string `json:"related,omitempty"`
}

type PagedDocumentLinks struct {
	First string `json:"first"`
	Next  string `json:"next"`
	Self  string `json:"self"`
}

type Meta struct {
	Paging struct {
		Total int `json:"total"`
		Limit int `json:"limit"`
	} `json:"paging"`
}

type Date time.Time

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), "\"")
	if s == "null" || s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.000+00:00", s)
	if err != nil {
		// If that fails, try parsing without milliseconds
		t, err = time.Parse("2006-01-02T15:04:05-07:00", s)
		if err != nil {
			return err
		}
	}
	*d = Date(t)
	return nil
}
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d))
}
func (d Date) Format(s string) string {
	return time.Time(d).Format(s)
}
func (d Date) Before(d2 Date) bool {
	return time.Time(d).Before(time.Time(d2))
}
func (d Date) Time() time.Time {
	return time.Time(d)
}
func (d Date) IsZero() bool {
	return time.Time(d).IsZero()
}

// Data is a bare JSON:API resource linkage {id, type}.
type Data struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}
