package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONArray streams the elements of a top-level JSON array.
// Both channels are closed when processing completes.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	return streamJSON[T](ctx, r, "")
}

// DecodeJSONArrayField streams the elements of the array stored under field
// in a top-level JSON object, e.g. {"data": [...]}. Other members are skipped
// without being materialized into values.
func DecodeJSONArrayField[T any](ctx context.Context, r io.Reader, field string) (<-chan T, <-chan error) {
	return streamJSON[T](ctx, r, field)
}

func streamJSON[T any](ctx context.Context, r io.Reader, field string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		if field != "" {
			found, err := seekField(decoder, field)
			if err != nil {
				errCh <- err
				return
			}
			if !found {
				errCh <- eris.Errorf("json: field %q not found", field)
				return
			}
		}

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF && field == "" {
				return
			}
			errCh <- eris.Wrap(err, "json: read opening token")
			return
		}
		if delim, ok := tok.(json.Delim); !ok || delim != '[' {
			errCh <- eris.Errorf("json: expected '[', got %v", tok)
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}

			var item T
			if err := decoder.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return outCh, errCh
}

// seekField advances the decoder past the key of field in the top-level object.
func seekField(decoder *json.Decoder, field string) (bool, error) {
	tok, err := decoder.Token()
	if err != nil {
		return false, eris.Wrap(err, "json: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return false, eris.Errorf("json: expected '{', got %v", tok)
	}

	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return false, eris.Wrap(err, "json: read key")
		}
		if key, _ := tok.(string); key == field {
			return true, nil
		}
		var skip json.RawMessage
		if err := decoder.Decode(&skip); err != nil {
			return false, eris.Wrap(err, "json: skip value")
		}
	}
	return false, nil
}
