package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/cloudnet/internal/domain"
)

// Response headers that describe a converted file.
const (
	headerFileUUID        = "X-File-Uuid"
	headerFileFormat      = "X-File-Format"
	headerSourceFileUUIDs = "X-Source-File-Uuids"
)

// ConvertInput is one file handed to the converter with its role, e.g.
// "raw" for instrument data or the product kind for derived inputs.
type ConvertInput struct {
	Role string
	Path string
}

// ConvertRequest asks the converter for one product file.
type ConvertRequest struct {
	Kind       domain.ProductKind
	Site       domain.Site
	Date       string
	Instrument string
	Model      string
	// UUID is the identity to reuse; empty mints a new one.
	UUID   string
	Inputs []ConvertInput
	// OutputPath receives the converted file.
	OutputPath string
}

// ConvertResult describes a converted file.
type ConvertResult struct {
	Path            string
	UUID            string
	Format          string
	SourceFileUUIDs []string
}

// FileAttributes are the global attributes embedded in a product file.
type FileAttributes struct {
	UUID   string `json:"uuid"`
	PID    string `json:"pid"`
	Format string `json:"format"`
}

// Converter turns inputs into one product file. It fails with
// domain.ErrInputInsufficient or domain.ErrConversion.
type Converter interface {
	Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error)
}

// AttributeEditor reads and rewrites product file attributes in place.
type AttributeEditor interface {
	ReadAttributes(ctx context.Context, path string) (*FileAttributes, error)
	WriteAttributes(ctx context.Context, path, pid string) error
}

// ConverterConfig holds configuration for the converter client.
type ConverterConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ConverterClient talks to the processing library over HTTP.
type ConverterClient struct {
	client  *resty.Client
	baseURL string
}

// NewConverterClient creates a new converter client.
func NewConverterClient(cfg *ConverterConfig) *ConverterClient {
	client := resty.New()
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	client.SetTimeout(timeout)

	return &ConverterClient{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Convert posts the inputs to /convert/{kind} and streams the product file
// to req.OutputPath.
func (c *ConverterClient) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	siteJSON, err := json.Marshal(req.Site)
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("site", string(siteJSON))
	form.Set("date", req.Date)
	if req.Instrument != "" {
		form.Set("instrument", req.Instrument)
	}
	if req.Model != "" {
		form.Set("model", req.Model)
	}
	if req.UUID != "" {
		form.Set("uuid", req.UUID)
	}

	r := c.client.R().SetContext(ctx).SetDoNotParseResponse(true)
	closers := make([]io.Closer, 0, len(req.Inputs))
	defer func() {
		for _, cl := range closers {
			cl.Close()
		}
	}()
	for _, in := range req.Inputs {
		f, err := os.Open(in.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		closers = append(closers, f)
		form.Add("roles", in.Role)
		r.SetFileReader("files", filepath.Base(in.Path), f)
	}
	r.SetFormDataFromValues(form)

	resp, err := r.Post(c.baseURL + "/convert/" + url.PathEscape(string(req.Kind)))
	if err != nil {
		return nil, domain.ErrConversion.New("failed to call converter: %v", err)
	}
	body := resp.RawBody()
	defer body.Close()

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusUnprocessableEntity:
		return nil, domain.ErrInputInsufficient.New("%s", readReason(body))
	default:
		return nil, domain.ErrConversion.New("converter returned HTTP %d: %s", resp.StatusCode(), readReason(body))
	}

	if err := writeFile(req.OutputPath, body); err != nil {
		return nil, domain.ErrConversion.Wrap(err)
	}

	result := &ConvertResult{
		Path:   req.OutputPath,
		UUID:   resp.Header().Get(headerFileUUID),
		Format: resp.Header().Get(headerFileFormat),
	}
	if result.UUID == "" {
		return nil, domain.ErrConversion.New("converter response has no %s header", headerFileUUID)
	}
	if req.UUID != "" && result.UUID != req.UUID {
		return nil, domain.ErrConversion.New("converter returned uuid %s, expected %s", result.UUID, req.UUID)
	}
	for _, id := range strings.Split(resp.Header().Get(headerSourceFileUUIDs), ",") {
		if id = strings.TrimSpace(id); id != "" {
			result.SourceFileUUIDs = append(result.SourceFileUUIDs, id)
		}
	}
	return result, nil
}

type validateResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

// ValidateRaw asks the converter whether one raw file is structurally usable.
func (c *ConverterClient) ValidateRaw(ctx context.Context, instrument, date, path string) (bool, string, error) {
	var result validateResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetFormData(map[string]string{"date": date}).
		SetResult(&result).
		Post(c.baseURL + "/validate/" + url.PathEscape(instrument))
	if err != nil {
		return false, "", fmt.Errorf("failed to call converter validate: %w", err)
	}
	if resp.IsError() {
		return false, "", domain.ErrConversion.New("validate returned HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return result.Valid, result.Reason, nil
}

// ReadAttributes returns the identity attributes embedded in a product file.
func (c *ConverterClient) ReadAttributes(ctx context.Context, path string) (*FileAttributes, error) {
	var attrs FileAttributes
	resp, err := c.client.R().
		SetContext(ctx).
		SetFile("file", path).
		SetResult(&attrs).
		Post(c.baseURL + "/attributes/read")
	if err != nil {
		return nil, fmt.Errorf("failed to read attributes: %w", err)
	}
	if resp.IsError() {
		return nil, domain.ErrConversion.New("attributes/read returned HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return &attrs, nil
}

// WriteAttributes embeds pid into the file at path, replacing it.
func (c *ConverterClient) WriteAttributes(ctx context.Context, path, pid string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetFile("file", path).
		SetFormData(map[string]string{"pid": pid}).
		Post(c.baseURL + "/attributes/write")
	if err != nil {
		return fmt.Errorf("failed to write attributes: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() != http.StatusOK {
		return domain.ErrConversion.New("attributes/write returned HTTP %d: %s", resp.StatusCode(), readReason(body))
	}

	tmp := path + ".tmp"
	if err := writeFile(tmp, body); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// readReason returns the start of an error body.
func readReason(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1024))
	reason := strings.TrimSpace(string(b))
	if reason == "" {
		return "no reason given"
	}
	return reason
}
