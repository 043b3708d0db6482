package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Fixture answers every call with result, sent verbatim.
func Fixture(result json.RawMessage) HandlerFunc {
	return func(ctx context.Context, params []any) (any, error) {
		return result, nil
	}
}

// LoadFixtures reads a {"method": result, ...} document and registers one Fixture per method.
// Results are kept as raw JSON so numbers keep their exact text.
func (s *Server) LoadFixtures(r io.Reader) (int, error) {
	var fixtures map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&fixtures); err != nil {
		return 0, fmt.Errorf("decode fixtures: %w", err)
	}
	for method, result := range fixtures {
		s.Handle(method, Fixture(result))
	}
	return len(fixtures), nil
}

func (s *Server) LoadFixtureFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return s.LoadFixtures(f)
}
