//go:build cgo && netlib

package device

// Registers the netlib BLAS implementation (Accelerate on macOS, OpenBLAS on
// Linux) for the strided copies done by tensor clones. Build with
// -tags netlib and CGO_LDFLAGS pointing at a system BLAS.

import (
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

func init() {
	blas32.Use(netlib.Implementation{})
	blas64.Use(netlib.Implementation{})
	log.Debug().Msg("CGO/BLAS acceleration enabled (netlib)")
}
