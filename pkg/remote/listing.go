package remote

import (
	"encoding/json"
	"time"

	"github.com/sidkik/odbsync/pkg/errors"
	"github.com/sidkik/odbsync/pkg/tree"
)

// entry is the subset of the SharePoint folder and file resources that the
// tree keeps. Responses are in the OData verbose format, so the payload is
// nested under "d".
type entry struct {
	Name              string          `json:"Name"`
	ServerRelativeURL string          `json:"ServerRelativeUrl"`
	Length            json.RawMessage `json:"Length"`
	TimeLastModified  string          `json:"TimeLastModified"`
}

type entryResponse struct {
	D *entry `json:"d"`
}

type listResponse struct {
	D *struct {
		Results []entry `json:"results"`
	} `json:"d"`
}

func parseFolder(path string, body []byte) (*tree.Folder, error) {
	var resp entryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(path, err.Error())
	}
	if resp.D == nil {
		return nil, malformed(path, `missing "d"`)
	}
	return tree.NewFolder(resp.D.Name, resp.D.ServerRelativeURL), nil
}

func parseList(path string, body []byte) ([]entry, error) {
	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(path, err.Error())
	}
	if resp.D == nil {
		return nil, malformed(path, `missing "d"`)
	}
	return resp.D.Results, nil
}

func (e entry) toFile() (*tree.File, error) {
	length, err := tree.ParseLength(e.Length)
	if err != nil {
		return nil, malformed(e.ServerRelativeURL, err.Error())
	}

	modTime, err := time.Parse(time.RFC3339, e.TimeLastModified)
	if err != nil {
		return nil, malformed(e.ServerRelativeURL, err.Error())
	}

	return &tree.File{
		Name:              e.Name,
		ServerRelativeURL: e.ServerRelativeURL,
		Length:            length,
		TimeLastModified:  modTime,
	}, nil
}

func malformed(path, detail string) error {
	return errors.SchemaError{
		Kind:   errors.MalformedListing,
		Path:   path,
		Detail: detail,
	}
}
