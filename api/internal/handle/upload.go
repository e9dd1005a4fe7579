package handle

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

var allowedExtensions = map[string]bool{".pdf": true, ".png": true, ".jpg": true, ".jpeg": true}

// formOverhead leaves room for text fields next to the file in a multipart body.
const formOverhead = 1 << 20

type uploadError struct {
	code int
	msg  string
}

func (e *uploadError) Error() string { return e.msg }

type upload struct {
	Name string
	Data []byte
}

// readUpload pulls one file out of a multipart form and checks its name and size.
func (h *Handle) readUpload(w http.ResponseWriter, r *http.Request, field, missing string, pdfOnly bool) (upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return upload{}, &uploadError{http.StatusRequestEntityTooLarge, fmt.Sprintf("file too large, limit is %d bytes", h.maxUpload)}
		}
		return upload{}, &uploadError{http.StatusBadRequest, "expected multipart/form-data: " + err.Error()}
	}
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return upload{}, &uploadError{http.StatusBadRequest, missing}
	}
	defer f.Close()

	if hdr.Filename == "" {
		return upload{}, &uploadError{http.StatusBadRequest, "No file selected"}
	}
	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	if pdfOnly && ext != ".pdf" {
		return upload{}, &uploadError{http.StatusBadRequest, "Invalid file type. Only PDF allowed."}
	}
	if !allowedExtensions[ext] {
		return upload{}, &uploadError{http.StatusBadRequest, "Invalid file type"}
	}

	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return upload{}, &uploadError{http.StatusBadRequest, "read upload: " + err.Error()}
	}
	if int64(len(data)) > h.maxUpload {
		return upload{}, &uploadError{http.StatusRequestEntityTooLarge, fmt.Sprintf("file too large, limit is %d bytes", h.maxUpload)}
	}
	if len(data) == 0 {
		return upload{}, &uploadError{http.StatusBadRequest, "Uploaded file is empty"}
	}
	return upload{Name: filepath.Base(hdr.Filename), Data: data}, nil
}

func writeUploadError(w http.ResponseWriter, err error) {
	var ue *uploadError
	if errors.As(err, &ue) {
		writeError(w, ue.code, ue.msg)
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
