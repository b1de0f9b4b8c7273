package relay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// reencodeForm copies a multipart form part by part into a fresh multipart
// body. URL-encoded bodies are forwarded verbatim.
func reencodeForm(r *http.Request) (io.Reader, string, error) {
	contentType := r.Header.Get("Content-Type")
	if isURLEncoded(contentType) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(raw), contentType, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", err
		}
		if err := copyPart(mw, part); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func copyPart(mw *multipart.Writer, part *multipart.Part) error {
	defer part.Close()
	name := part.FormName()
	if name == "" {
		return nil
	}

	var dst io.Writer
	var err error
	if filename := part.FileName(); filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, filename))
		if ct := part.Header.Get("Content-Type"); ct != "" {
			h.Set("Content-Type", ct)
		}
		dst, err = mw.CreatePart(h)
	} else {
		dst, err = mw.CreateFormField(name)
	}
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, part)
	return err
}
