package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/iago/licitacao-pipeline/internal/domain"
	"github.com/iago/licitacao-pipeline/internal/redact"
)

const (
	maxErrorBody           = 700
	defaultMaxResponseSize = 64 << 20
)

type HTTPClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	// MaxResponseBytes caps the extraction response body. Zero means 64 MiB.
	MaxResponseBytes int64
}

// HTTPClient posts the document to the extraction service once. There is
// no retry: a failed call fails the task.
type HTTPClient struct {
	baseURL     string
	apiKey      string
	timeout     time.Duration
	maxResponse int64
	httpClient  *http.Client
}

func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = defaultMaxResponseSize
	}
	return &HTTPClient{
		baseURL:     strings.TrimSuffix(strings.TrimSpace(config.BaseURL), "/"),
		apiKey:      strings.TrimSpace(config.APIKey),
		timeout:     config.Timeout,
		maxResponse: config.MaxResponseBytes,
		httpClient:  config.HTTPClient,
	}
}

type extractResponse struct {
	Markdown   string         `json:"markdown_content"`
	Text       string         `json:"text_content"`
	Tables     []domain.Table `json:"tables"`
	Pages      int            `json:"page_count"`
	Confidence struct {
		Overall float64 `json:"overall_score"`
		Layout  float64 `json:"layout_score"`
		OCR     float64 `json:"ocr_score"`
		Parse   float64 `json:"parse_score"`
		Table   float64 `json:"table_score"`
	} `json:"confidence"`
}

func (c *HTTPClient) Extract(ctx context.Context, content []byte, fileName string) (domain.Extraction, error) {
	if c.baseURL == "" {
		return domain.Extraction{}, fail(fileName, errors.New("extraction service url is not configured"))
	}

	body, contentType, err := multipartBody(content, fileName)
	if err != nil {
		return domain.Extraction{}, fail(fileName, err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, c.baseURL+"/extract", body)
	if err != nil {
		return domain.Extraction{}, fail(fileName, fmt.Errorf("create extraction request: %w", err))
	}
	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
			return domain.Extraction{}, fail(fileName, fmt.Errorf("extraction timeout: %w", err))
		}
		return domain.Extraction{}, fail(fileName, fmt.Errorf("extraction transport error: %w", err))
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, c.maxResponse+1))
	if err != nil {
		return domain.Extraction{}, fail(fileName, fmt.Errorf("read extraction body: %w", err))
	}
	if int64(len(raw)) > c.maxResponse {
		return domain.Extraction{}, fail(fileName, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.maxResponse))
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		// The body may echo document content back.
		message := redact.Text(strings.TrimSpace(string(raw)))
		if len(message) > maxErrorBody {
			message = message[:maxErrorBody]
		}
		return domain.Extraction{}, fail(fileName, &HTTPError{StatusCode: response.StatusCode, Message: message})
	}

	var decoded extractResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.Extraction{}, fail(fileName, fmt.Errorf("decode extraction response: %w", err))
	}
	if strings.TrimSpace(decoded.Markdown) == "" && strings.TrimSpace(decoded.Text) == "" {
		return domain.Extraction{}, fail(fileName, errors.New("extraction response without text"))
	}

	return normalize(domain.Extraction{
		Markdown: decoded.Markdown,
		Text:     decoded.Text,
		Tables:   decoded.Tables,
		Pages:    decoded.Pages,
		Confidence: domain.Confidence{
			Overall: decoded.Confidence.Overall,
			Layout:  decoded.Confidence.Layout,
			OCR:     decoded.Confidence.OCR,
			Parse:   decoded.Confidence.Parse,
			Table:   decoded.Confidence.Table,
		},
	}), nil
}

func multipartBody(content []byte, fileName string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
