package deploy

import (
	"path"
	"strings"
)

// RewriteURI maps a request path onto the object that holds it. Directory
// requests and extensionless paths resolve to their index.html; anything
// with a file extension is returned unchanged.
//
//	/            -> /index.html
//	/about/      -> /about/index.html
//	/about       -> /about/index.html
//	/rss.xml     -> /rss.xml
func RewriteURI(uri string) string {
	if uri == "" {
		return "/index.html"
	}
	if !strings.HasPrefix(uri, "/") {
		uri = "/" + uri
	}
	if strings.HasSuffix(uri, "/") {
		return uri + "index.html"
	}
	if path.Ext(uri) == "" {
		return uri + "/index.html"
	}
	return uri
}
