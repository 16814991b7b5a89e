package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strconv"
	"strings"
)

// Upload forwards files and form fields as multipart/form-data. Files under
// one field become name[i] when the field holds several files or is named
// name[]. Fields in call.Body must be a map[string]any: strings are sent as
// is, []string values become name[i] parts, and any other value is sent as
// JSON. The multipart boundary replaces any Content-Type header. It follows
// the same refresh-and-retry rules as Forward.
func (f *Forwarder) Upload(ctx context.Context, creds Credentials, call Call, files map[string][]*multipart.FileHeader) *Result {
	if call.Method == "" {
		call.Method = http.MethodPost
	}
	call.Method = strings.ToUpper(call.Method)
	url := BuildURL(f.baseURL, call.Endpoint)

	fields, _ := call.Body.(map[string]any)

	build := func(ctx context.Context, accessToken string) (*http.Request, error) {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)

		req, err := http.NewRequestWithContext(ctx, call.Method, url, pr)
		if err != nil {
			pr.Close()
			return nil, fmt.Errorf("failed to create upload request: %w", err)
		}

		go func() {
			err := writeMultipart(mw, files, fields)
			if err == nil {
				err = mw.Close()
			}
			pw.CloseWithError(err)
		}()

		req.Header.Set("Accept", "application/json")
		applyAuthAndHeaders(req, accessToken, call.Headers)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}

	return f.send(ctx, creds, call, build, firstAttempt)
}

func writeMultipart(mw *multipart.Writer, files map[string][]*multipart.FileHeader, fields map[string]any) error {
	for _, name := range sortedKeys(fields) {
		if err := writeField(mw, name, fields[name]); err != nil {
			return err
		}
	}

	for _, name := range sortedKeys(files) {
		headers := files[name]
		base, indexed := strings.CutSuffix(name, "[]")
		indexed = indexed || len(headers) > 1

		for i, fh := range headers {
			if fh == nil || fh.Filename == "" || fh.Size == 0 {
				continue
			}
			partName := base
			if indexed {
				partName = base + "[" + strconv.Itoa(i) + "]"
			}
			if err := writeFile(mw, partName, fh); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeField(mw *multipart.Writer, name string, value any) error {
	switch v := value.(type) {
	case string:
		return mw.WriteField(name, v)
	case []string:
		base := strings.TrimSuffix(name, "[]")
		for i, item := range v {
			if err := mw.WriteField(base+"["+strconv.Itoa(i)+"]", item); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return mw.WriteField(name, "")
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode field %s: %w", name, err)
		}
		return mw.WriteField(name, string(encoded))
	}
}

func writeFile(mw *multipart.Writer, name string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
	}
	defer src.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     name,
		"filename": fh.Filename,
	}))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to stream upload %s: %w", fh.Filename, err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
