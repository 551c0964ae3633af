package markdown

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter is returned when a document opens a frontmatter
// block but never closes it.
var ErrMissingClosingDelimiter = errors.New("frontmatter: missing closing delimiter")

// Split separates YAML frontmatter (`---` delimited) from the Markdown body.
// A document without frontmatter returns a nil frontmatter and the full input.
func Split(content []byte) (frontmatter []byte, body []byte, err error) {
	nl := "\n"
	if bytes.HasPrefix(content, []byte("---\r\n")) {
		nl = "\r\n"
	}
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closeSeq)
	if idx < 0 {
		// A closing delimiter on the last line has no trailing newline.
		if bytes.HasSuffix(content, []byte(nl+"---")) {
			end := len(content) - len(nl+"---")
			return content[start : end+len(nl)], []byte{}, nil
		}
		return nil, nil, ErrMissingClosingDelimiter
	}
	end := start + idx + len(nl)
	return content[start:end], content[start+idx+len(closeSeq):], nil
}

// Parse splits content and decodes its frontmatter into fm.
func Parse(content []byte, fm any) (body []byte, err error) {
	front, body, err := Split(content)
	if err != nil {
		return nil, err
	}
	if len(front) > 0 {
		if err := yaml.Unmarshal(front, fm); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// Join encodes fm as YAML frontmatter and prepends it to body.
func Join(fm any, body []byte) ([]byte, error) {
	front, err := yaml.Marshal(fm)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(front)+len(body)+8)
	out = append(out, "---\n"...)
	out = append(out, front...)
	out = append(out, "---\n"...)
	out = append(out, body...)
	return out, nil
}
