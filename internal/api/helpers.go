package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"

	"github.com/F3-Nation/f3-nation-auth/internal/api/apierrors"
	"github.com/F3-Nation/f3-nation-auth/internal/conf"
	"github.com/F3-Nation/f3-nation-auth/internal/utilities"
)

func addRequestID(globalConfig *conf.GlobalConfiguration) middlewareHandler {
	return func(w http.ResponseWriter, r *http.Request) (context.Context, error) {
		id := ""
		if globalConfig.API.RequestIDHeader != "" {
			id = r.Header.Get(globalConfig.API.RequestIDHeader)
		}
		if id == "" {
			uid := uuid.Must(uuid.NewV4())
			id = uid.String()
		}

		ctx := r.Context()
		ctx = utilities.WithRequestID(ctx, id)
		return ctx, nil
	}
}

func sendJSON(w http.ResponseWriter, status int, obj interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	b, err := json.Marshal(obj)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("Error encoding json response: %v", obj))
	}
	w.WriteHeader(status)
	_, err = w.Write(b)
	return err
}

// retrieveRequestParams decodes a JSON request body into params.
func retrieveRequestParams[A any](r *http.Request, params *A) error {
	if r.Body == nil || r.Body == http.NoBody {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "Empty request body")
	}

	if err := json.NewDecoder(r.Body).Decode(params); err != nil {
		return badRequestError(apierrors.ErrorCodeValidationFailed, "Could not read request body").WithInternalError(err)
	}
	return nil
}

func isStringInSlice(checkValue string, list []string) bool {
	for _, val := range list {
		if val == checkValue {
			return true
		}
	}
	return false
}
