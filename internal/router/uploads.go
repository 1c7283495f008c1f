package router

import (
	"errors"
	"net/http"

	"github.com/patric-chuzhbe/yourplaces/internal/apperr"
)

const (
	imageField = "image"

	// multipartOverhead is the allowance for form fields and part headers.
	multipartOverhead = 1 << 20
)

// parseMultipart reads a multipart form whose body may not exceed the image
// limit plus a small allowance for the other fields.
func (r *Router) parseMultipart(response http.ResponseWriter, request *http.Request) error {
	request.Body = http.MaxBytesReader(response, request.Body, r.files.MaxSize()+multipartOverhead)

	err := request.ParseMultipartForm(r.files.MaxSize() + multipartOverhead)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperr.ValidationFailed("File too large.")
	}
	if err != nil {
		return apperr.ValidationFailed(invalidInputsMessage)
	}

	return nil
}

// saveUpload stores the image part of a parsed multipart form. It returns an
// empty path when the request carries no image.
func (r *Router) saveUpload(request *http.Request) (string, error) {
	file, _, err := request.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", apperr.ValidationFailed(invalidInputsMessage)
	}
	defer file.Close()

	return r.files.Save(file)
}

func cleanupMultipart(request *http.Request) {
	if request.MultipartForm != nil {
		_ = request.MultipartForm.RemoveAll()
	}
}
