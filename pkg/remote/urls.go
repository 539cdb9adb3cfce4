package remote

import (
	"fmt"
	"strings"

	"github.com/sidkik/odbsync/pkg/errors"
)

// folderPathEscaper prepares a server relative path for use inside a
// quoted OData string literal.
var folderPathEscaper = strings.NewReplacer(
	"'", "''",
	"%", "%25",
	"#", "%23",
)

// FolderURL returns the REST endpoint for the folder at serverRelativePath.
// The suffix selects a sub-resource such as "/Files".
func FolderURL(baseURL, serverRelativePath, suffix string) string {
	return fmt.Sprintf("%s/GetFolderByServerRelativePath(decodedurl='%s')%s",
		baseURL, folderPathEscaper.Replace(serverRelativePath), suffix)
}

// NewContentURLBuilder returns a function that maps a server relative path
// to a direct download link. The link is rooted at the site host, which is
// the part of the API base URL in front of "/personal/".
func NewContentURLBuilder(baseURL string) (func(serverRelativePath string) string, error) {
	idx := strings.Index(baseURL, "/personal/")
	if idx < 0 {
		return nil, errors.New("base URL %q does not contain /personal/", baseURL)
	}

	host := baseURL[:idx]
	return func(serverRelativePath string) string {
		return host + quotePath(serverRelativePath) + "?download=1"
	}, nil
}

// quotePath percent-encodes every byte of p except unreserved characters
// and '/'. url.PathEscape leaves sub-delimiters such as '&' and '+'
// unescaped, which the download endpoint misreads.
func quotePath(p string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		if isUnreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xF])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}
