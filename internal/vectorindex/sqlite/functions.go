package sqlite

import (
	"database/sql/driver"
	"fmt"
	"sync"

	sqlite "modernc.org/sqlite"
)

const cosineDistanceFunc = "vec_cosine_distance"

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions makes vec_cosine_distance available to every connection opened
// afterwards. The driver rejects duplicate names, so it runs once per process.
func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction(cosineDistanceFunc, 2, vecCosineDistance)
	})
	return registerErr
}

func vecCosineDistance(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s: expected 2 arguments, got %d", cosineDistanceFunc, len(args))
	}
	a, err := asEmbedding(args[0])
	if err != nil {
		return nil, err
	}
	b, err := asEmbedding(args[1])
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}
	d, err := cosineDistance(a, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cosineDistanceFunc, err)
	}
	return d, nil
}

func asEmbedding(arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		return decodeEmbedding(v)
	default:
		return nil, fmt.Errorf("%s: unsupported argument type %T, want BLOB", cosineDistanceFunc, arg)
	}
}
