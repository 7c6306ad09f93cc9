// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pokearena/scoresync/internal/domain/model"
)

// Body size caps. Bulk uploads may carry whole result files.
const (
	maxBodyBytes = 1 << 20  // 1 MiB
	maxBulkBytes = 16 << 20 // 16 MiB
)

// uploadField is the multipart file field holding the payload.
const uploadField = "scores"

// submissionRequest is the wire shape of one submission. The same shape
// arrives as a JSON body, urlencoded form fields, or a file upload whose
// contents are raw JSON or base64-wrapped JSON.
type submissionRequest struct {
	Scheme   string `json:"scheme,omitempty"`
	UID      string `json:"uid,omitempty"`
	Player   string `json:"player"`
	Mode     string `json:"mode"`
	Rounds   int64  `json:"rounds"`
	KOs      int64  `json:"kos"`
	Trainers int64  `json:"trainers"`
	Extra    int64  `json:"extra"`
	Marker   int64  `json:"marker"`
	Team     string `json:"team,omitempty"`
	Secret   string `json:"secret,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Token    string `json:"token,omitempty"`
}

// bulkRequest wraps a batch of submissions. A bare JSON array of
// submission objects is accepted as shorthand.
type bulkRequest struct {
	Submissions []submissionRequest `json:"submissions"`
	Token       string              `json:"token,omitempty"`
}

// toModel converts the wire shape into a domain submission. The scheme is
// inferred from the presence of a uid when not given explicitly.
func (req submissionRequest) toModel() (model.Submission, error) {
	scheme := model.Scheme(req.Scheme)
	if req.Scheme == "" {
		scheme = model.SchemeName
		if req.UID != "" {
			scheme = model.SchemeDevice
		}
	}
	if !scheme.Valid() {
		return model.Submission{}, fmt.Errorf("%w: unknown scheme %q", ErrBadRequest, req.Scheme)
	}
	if scheme == model.SchemeDevice && req.UID == "" {
		return model.Submission{}, fmt.Errorf("%w: missing uid for device scheme", ErrBadRequest)
	}
	return model.Submission{
		Scheme: scheme,
		UID:    req.UID,
		Player: req.Player,
		Mode:   model.Mode(req.Mode),
		Counters: model.Counters{
			Rounds:   req.Rounds,
			KOs:      req.KOs,
			Trainers: req.Trainers,
			Extra:    req.Extra,
		},
		Marker: req.Marker,
		Team:   req.Team,
		Secret: req.Secret,
		Tag:    req.Tag,
	}, nil
}

// decodeSubmission reads one submission from any supported encoding and
// returns it with the caller's token. The header token wins over a token
// field carried in the payload.
func decodeSubmission(r *http.Request) (model.Submission, string, error) {
	req, err := decodeSubmissionRequest(r)
	if err != nil {
		return model.Submission{}, "", err
	}
	sub, err := req.toModel()
	if err != nil {
		return model.Submission{}, "", err
	}
	return sub, clientToken(r, req.Token), nil
}

// decodeBulk reads a batch of submissions from a JSON body or file upload.
func decodeBulk(r *http.Request) ([]model.Submission, string, error) {
	var raw []byte
	switch mediaType(r) {
	case "application/json", "":
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBulkBytes))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		raw = body
	case "multipart/form-data":
		body, err := readUpload(r, maxBulkBytes)
		if err != nil {
			return nil, "", err
		}
		raw = body
	default:
		return nil, "", fmt.Errorf("%w: unsupported content type for bulk", ErrBadRequest)
	}

	var req bulkRequest
	if err := decodePayload(raw, &req); err != nil {
		// Shorthand: a bare array of submission objects.
		var items []submissionRequest
		if arrErr := decodePayload(raw, &items); arrErr != nil {
			return nil, "", err
		}
		req.Submissions = items
	}
	if len(req.Submissions) == 0 {
		return nil, "", fmt.Errorf("%w: empty batch", ErrBadRequest)
	}

	subs := make([]model.Submission, len(req.Submissions))
	for i, item := range req.Submissions {
		sub, err := item.toModel()
		if err != nil {
			return nil, "", fmt.Errorf("item %d: %w", i, err)
		}
		subs[i] = sub
	}
	return subs, clientToken(r, req.Token), nil
}

// decodeSubmissionRequest dispatches on the request content type.
func decodeSubmissionRequest(r *http.Request) (submissionRequest, error) {
	switch mediaType(r) {
	case "application/json", "":
		var req submissionRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
			return submissionRequest{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return req, nil
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return submissionRequest{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return fromForm(r.PostForm)
	case "multipart/form-data":
		raw, err := readUpload(r, maxBodyBytes)
		if err != nil {
			return submissionRequest{}, err
		}
		var req submissionRequest
		if err := decodePayload(raw, &req); err != nil {
			return submissionRequest{}, err
		}
		if req.Token == "" {
			req.Token = r.FormValue("token")
		}
		return req, nil
	default:
		return submissionRequest{}, fmt.Errorf("%w: unsupported content type", ErrBadRequest)
	}
}

// readUpload returns the contents of the upload file field.
func readUpload(r *http.Request, limit int64) ([]byte, error) {
	if err := r.ParseMultipartForm(limit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	file, _, err := r.FormFile(uploadField)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %q file field", ErrBadRequest, uploadField)
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return raw, nil
}

// decodePayload unmarshals raw JSON, unwrapping one layer of base64 when
// the payload does not look like JSON.
func decodePayload(raw []byte, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadRequest)
	}
	if raw[0] != '{' && raw[0] != '[' {
		decoded, err := base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			return fmt.Errorf("%w: payload is neither JSON nor base64", ErrBadRequest)
		}
		raw = bytes.TrimSpace(decoded)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// fromForm maps urlencoded fields onto the wire shape.
func fromForm(values url.Values) (submissionRequest, error) {
	req := submissionRequest{
		Scheme: values.Get("scheme"),
		UID:    values.Get("uid"),
		Player: values.Get("player"),
		Mode:   values.Get("mode"),
		Team:   values.Get("team"),
		Secret: values.Get("secret"),
		Tag:    values.Get("tag"),
		Token:  values.Get("token"),
	}
	var err error
	if req.Rounds, err = formInt(values, "rounds"); err != nil {
		return submissionRequest{}, err
	}
	if req.KOs, err = formInt(values, "kos"); err != nil {
		return submissionRequest{}, err
	}
	if req.Trainers, err = formInt(values, "trainers"); err != nil {
		return submissionRequest{}, err
	}
	if req.Extra, err = formInt(values, "extra"); err != nil {
		return submissionRequest{}, err
	}
	if req.Marker, err = formInt(values, "marker"); err != nil {
		return submissionRequest{}, err
	}
	return req, nil
}

// formInt parses an optional integer form field; absent means zero.
func formInt(values url.Values, key string) (int64, error) {
	s := values.Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q is not an integer", ErrBadRequest, key)
	}
	return n, nil
}

// clientToken prefers the header token over one carried in the payload.
func clientToken(r *http.Request, fallback string) string {
	if t := r.Header.Get(headerToken); t != "" {
		return t
	}
	return fallback
}

// mediaType returns the normalized request content type.
func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mt
}
