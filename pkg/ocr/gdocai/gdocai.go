// Package gdocai implements a remote OCR engine backed by Google Document AI.
//
// Each page image is sent to a Document AI OCR processor as a raw PNG
// document and the recognized text is read back from the response layout.
// The processor is addressed by project, location and processor ID;
// authentication uses the GOOGLE_APPLICATION_CREDENTIALS environment variable
// unless a credentials file is configured explicitly.
//
// gRPC failures are mapped onto the ocr error taxonomy so the retry and batch
// layers treat quota exhaustion, transient outages and permission problems
// appropriately.
package gdocai

import (
	"context"
	"fmt"
	"os"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gardar/ocrbatch/pkg/ocr"
)

// Config holds the Google Document AI processor settings.
type Config struct {
	ProjectID   string `yaml:"project_id"`
	Location    string `yaml:"location"`
	ProcessorID string `yaml:"processor_id"`

	// CredentialsFile overrides the GOOGLE_APPLICATION_CREDENTIALS lookup.
	CredentialsFile string `yaml:"credentials_file"`

	// DebugDir, when set, receives one raw API response JSON per page for
	// debugging purposes.
	DebugDir string `yaml:"-"`
}

// Engine is a remote OCR engine calling a Google Document AI processor.
type Engine struct {
	cfg    Config
	name   string // processor resource name
	client *documentai.DocumentProcessorClient
}

// New instantiates the Document AI client and validates the processor
// configuration. The caller owns the engine and must Close it.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.ProjectID == "" || cfg.Location == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("gdocai config requires project_id, location and processor_id")
	}
	credsFile := cfg.CredentialsFile
	if credsFile == "" {
		credsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	client, err := documentai.NewDocumentProcessorClient(
		ctx,
		option.WithEndpoint(endpoint),
		option.WithCredentialsFile(credsFile),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Document AI client: %w", err)
	}

	return &Engine{
		cfg:    cfg,
		name:   fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.ProjectID, cfg.Location, cfg.ProcessorID),
		client: client,
	}, nil
}

func (e *Engine) Name() string { return "gdocai" }

// Close releases the underlying client connection.
func (e *Engine) Close() error { return e.client.Close() }

// Extract sends one page image to the Document AI processor and returns the
// recognized text.
func (e *Engine) Extract(ctx context.Context, page ocr.Page) (string, error) {
	req := &documentaipb.ProcessRequest{
		Name: e.name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  page.PNG,
				MimeType: "image/png",
			},
		},
		SkipHumanReview: true,
	}

	resp, err := e.client.ProcessDocument(ctx, req)
	if err != nil {
		return "", classifyGRPC(err)
	}
	doc := resp.GetDocument()
	if doc == nil {
		return "", fmt.Errorf("response contains no document")
	}

	if e.cfg.DebugDir != "" {
		if err := dumpRawResponse(e.cfg.DebugDir, page.Index, doc); err != nil {
			return "", fmt.Errorf("failed to write debug response: %w", err)
		}
	}

	// A single image yields a single page; prefer its layout text, falling
	// back to the document-level text.
	if pages := doc.GetPages(); len(pages) == 1 {
		if text := textFromLayout(pages[0].GetLayout(), doc.GetText()); text != "" {
			return text, nil
		}
	}
	return doc.GetText(), nil
}

// classifyGRPC maps a Document AI call failure onto the ocr error taxonomy.
func classifyGRPC(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &ocr.TransientError{Message: "document processing failed", Err: err}
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return &ocr.RateLimitedError{Message: st.Message()}
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return &ocr.TransientError{Message: st.Message(), Err: err}
	case codes.Unauthenticated, codes.PermissionDenied, codes.InvalidArgument, codes.NotFound:
		return &ocr.FatalError{Message: st.Message(), Err: err}
	default:
		return &ocr.TransientError{Message: st.Message(), Err: err}
	}
}
