package gdocai

import (
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/protobuf/encoding/protojson"
)

// dumpRawResponse writes the raw Document AI response for one page as JSON,
// named after the 1-based page index.
func dumpRawResponse(dir string, pageIndex int, doc *documentaipb.Document) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := protojson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal API response: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("page_%d.json", pageIndex))
	return os.WriteFile(path, data, 0644)
}
