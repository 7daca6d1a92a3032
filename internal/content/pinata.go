package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"nifty-go/internal/config"
	"nifty-go/internal/registry"
)

const DefaultPinataAPIURL = "https://api.pinata.cloud"

// PinataStore pins content to public IPFS through Pinata and reads it
// back through a gateway. Content ids are IPFS CIDs.
type PinataStore struct {
	client    *retryablehttp.Client
	jwt       string
	uploadURL string
	apiURL    string
	gateway   string
}

// PinataStoreConfig contains configuration for the Pinata content store.
type PinataStoreConfig struct {
	JWT       string
	UploadURL string
	Gateway   string // host or URL, e.g. "fun-llama-300.mypinata.cloud"

	// APIURL is used by ValidateSetup. Defaults to DefaultPinataAPIURL.
	APIURL string

	// HTTPClient overrides the underlying transport, mainly for tests.
	HTTPClient *http.Client
	RetryMax   int
	Logger     registry.Logger
}

func NewPinataStore(cfg PinataStoreConfig) (*PinataStore, error) {
	if cfg.JWT == "" {
		return nil, fmt.Errorf("pinata jwt is required")
	}
	if cfg.UploadURL == "" {
		return nil, fmt.Errorf("pinata upload url is required")
	}
	if cfg.Gateway == "" {
		return nil, fmt.Errorf("pinata gateway is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultPinataAPIURL
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	if cfg.Logger != nil {
		client.Logger = retryablehttp.LeveledLogger(cfg.Logger)
	}
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	}

	return &PinataStore{
		client:    client,
		jwt:       cfg.JWT,
		uploadURL: cfg.UploadURL,
		apiURL:    strings.TrimRight(cfg.APIURL, "/"),
		gateway:   normalizeGateway(cfg.Gateway),
	}, nil
}

// NewPinataStoreFromConfig creates a PinataStore from the content config.
func NewPinataStoreFromConfig(cfg config.ContentConfig, logger registry.Logger) (*PinataStore, error) {
	return NewPinataStore(PinataStoreConfig{
		JWT:       cfg.PinataJWT,
		UploadURL: cfg.PinataUploadURL,
		Gateway:   cfg.PinataGateway,
		RetryMax:  3,
		Logger:    logger,
	})
}

// normalizeGateway turns "host" into "https://host" and drops a trailing slash.
func normalizeGateway(gateway string) string {
	gateway = strings.TrimRight(gateway, "/")
	if !strings.HasPrefix(gateway, "http://") && !strings.HasPrefix(gateway, "https://") {
		gateway = "https://" + gateway
	}
	return gateway
}

type pinataUploadResponse struct {
	Data struct {
		ID   string `json:"id"`
		CID  string `json:"cid"`
		Size int64  `json:"size"`
	} `json:"data"`
}

// Put uploads the content as a public file and returns its IPFS CID.
func (p *PinataStore) Put(ctx context.Context, r io.Reader, size int64) (string, error) {
	data, sum, err := digest(r, size)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("network", "public"); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	part, err := mw.CreateFormFile("file", sum)
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.uploadURL, body.Bytes())
	if err != nil {
		return "", fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.jwt)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading to pinata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("pinata upload failed: %s", statusError(resp))
	}

	var out pinataUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding pinata response: %w", err)
	}
	if out.Data.CID == "" {
		return "", fmt.Errorf("pinata upload failed: no cid returned")
	}
	return out.Data.CID, nil
}

// URL returns the gateway URL content is served from.
func (p *PinataStore) URL(cid string) string {
	return p.gateway + "/ipfs/" + url.PathEscape(cid)
}

func (p *PinataStore) Get(ctx context.Context, cid string, w io.Writer) error {
	if cid == "" || strings.ContainsAny(cid, "/?# \t\n") {
		return fmt.Errorf("%w: %q", ErrNotFound, cid)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.URL(cid), nil)
	if err != nil {
		return fmt.Errorf("creating gateway request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s from gateway: %w", cid, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, cid)
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("fetching %s from gateway: %s", cid, statusError(resp))
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading %s from gateway: %w", cid, err)
	}
	return nil
}

// ValidateSetup checks that the JWT is accepted by the Pinata API.
func (p *PinataStore) ValidateSetup(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/data/testAuthentication", nil)
	if err != nil {
		return fmt.Errorf("creating auth request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.jwt)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("contacting pinata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("pinata rejected credentials: %s", statusError(resp))
	}
	return nil
}

// statusError describes a non-2xx response, including a short body excerpt.
func statusError(resp *http.Response) string {
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(excerpt))
	if msg == "" {
		return resp.Status
	}
	return resp.Status + ": " + msg
}

var (
	_ registry.ContentStore = (*PinataStore)(nil)
	_ registry.URLResolver  = (*PinataStore)(nil)
)
