package diag

import (
	"fmt"
	"io"

	"github.com/ironsheep/evocal/internal/calib"
)

// FormatSolution writes a human readable summary of a calibration vector:
// its fitness, camera position and angles, primary point, radial
// distortion and decentering.
func FormatSolution(w io.Writer, v calib.Vector, fitness float64) error {
	if len(v) != calib.VectorLen {
		return fmt.Errorf("%w: got %d genes", calib.ErrVectorLength, len(v))
	}

	angs := v.Angles()
	pos := calib.ExteriorPosition(v.Intersection(), v.Radius(), angs)

	_, err := fmt.Fprintf(w, "\n%g\npos/ang:\n%.8f %.8f %.8f\n%.8f %.8f %.8f\n\n"+
		"internal: %.8f %.8f %.8f\n"+
		"radial distortion: %.8f %.8f %.8f\n"+
		"decentering: %.8f %.8f\n",
		fitness,
		pos.X, pos.Y, pos.Z,
		angs[0], angs[1], angs[2],
		v[6], v[7], v[8],
		v[9], v[10], v[11],
		v[12], v[13])
	return err
}
