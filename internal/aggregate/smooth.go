package aggregate

import (
	"math"

	"codeberg.org/mutker/hashtop/internal/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	minWindowLength = 3
	polyOrderRatio  = 35
	minPolyOrder    = 1
	maxPolyOrder    = 3
)

// roundDownToOdd returns the largest odd number strictly below ceil(f),
// but never less than 1.
func roundDownToOdd(f float64) int {
	return max(int(math.Ceil(f))/2*2+1-2, 1)
}

// WindowLength is the Savitzky-Golay window for a series of n buckets:
// always odd and at least 3.
func WindowLength(n int) int {
	return max(roundDownToOdd(float64(n)), minWindowLength)
}

// PolyOrder is the polynomial order used with a window of length w:
// w/35 floored, clamped to [1, 3] and kept below w.
func PolyOrder(w int) int {
	order := min(max(w/polyOrderRatio, minPolyOrder), maxPolyOrder)
	if order >= w {
		order = w - 1
	}
	return max(order, 0)
}

// SavGol smooths ys with a Savitzky-Golay filter. Interior points use the
// convolution coefficients of the window; the first and last half-windows
// are taken from the polynomial fitted to the first and last full window.
// A series shorter than the window is replaced by a single fit of degree
// min(order, len(ys)-1).
func SavGol(ys []float64, window, order int) ([]float64, error) {
	errFactory := errors.New()

	n := len(ys)
	if n < 2 {
		return append([]float64(nil), ys...), nil
	}

	if window > n {
		out, err := fitEval(ys, 0, n, min(order, n-1), 0, n)
		if err != nil {
			return nil, errFactory.Wrap(ErrSmoothingFailed, err)
		}
		return out, nil
	}

	half := window / 2
	coeffs, err := centerCoefficients(window, order)
	if err != nil {
		return nil, errFactory.Wrap(ErrSmoothingFailed, err)
	}

	out := make([]float64, n)
	for i := half; i < n-half; i++ {
		var v float64
		for j, c := range coeffs {
			v += c * ys[i-half+j]
		}
		out[i] = v
	}

	head, err := fitEval(ys, 0, window, order, 0, half)
	if err != nil {
		return nil, errFactory.Wrap(ErrSmoothingFailed, err)
	}
	copy(out, head)

	tail, err := fitEval(ys, n-window, n, order, window-half, window)
	if err != nil {
		return nil, errFactory.Wrap(ErrSmoothingFailed, err)
	}
	copy(out[n-half:], tail)

	return out, nil
}

// centerCoefficients returns the weights that, applied to a window of
// samples, give the value at the centre of the least-squares polynomial.
// Offsets are scaled to [-1, 1]; the centre value is the constant term
// either way.
func centerCoefficients(window, order int) ([]float64, error) {
	half := window / 2
	a := vandermonde(window, order, float64(-half), float64(max(half, 1)))

	var ata mat.Dense
	ata.Mul(a.T(), a)

	e0 := mat.NewVecDense(order+1, nil)
	e0.SetVec(0, 1)

	var z mat.VecDense
	if err := z.SolveVec(&ata, e0); err != nil {
		return nil, err
	}

	var c mat.VecDense
	c.MulVec(a, &z)

	return c.RawVector().Data, nil
}

// fitEval fits a polynomial of the given degree to ys[from:to] and
// evaluates it at window offsets [evalFrom, evalTo). Offsets are scaled to
// [0, 1] for the fit.
func fitEval(ys []float64, from, to, degree, evalFrom, evalTo int) ([]float64, error) {
	m := to - from
	scale := float64(max(m-1, 1))
	a := vandermonde(m, degree, 0, scale)
	b := mat.NewVecDense(m, append([]float64(nil), ys[from:to]...))

	var p mat.Dense
	if err := p.Solve(a, b); err != nil {
		return nil, err
	}

	out := make([]float64, 0, evalTo-evalFrom)
	for x := evalFrom; x < evalTo; x++ {
		var v, pow float64 = 0, 1
		for k := 0; k <= degree; k++ {
			v += p.At(k, 0) * pow
			pow *= float64(x) / scale
		}
		out = append(out, v)
	}
	return out, nil
}

// vandermonde builds rows of powers of (x0+i)/scale up to degree.
func vandermonde(rows, degree int, x0, scale float64) *mat.Dense {
	a := mat.NewDense(rows, degree+1, nil)
	for i := 0; i < rows; i++ {
		x := (x0 + float64(i)) / scale
		pow := 1.0
		for k := 0; k <= degree; k++ {
			a.Set(i, k, pow)
			pow *= x
		}
	}
	return a
}

// MovingAverageWindow scales a bucket count down by factor, flooring at 1.
func MovingAverageWindow(n, factor int) int {
	if factor < 1 {
		factor = 1
	}
	return max(n/factor, 1)
}

// MovingAverage is a trailing simple moving average. The first window-1
// points average over the samples available so far.
func MovingAverage(xs []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}

	out := make([]float64, len(xs))
	var sum float64
	for i, x := range xs {
		sum += x
		if i >= window {
			sum -= xs[i-window]
		}
		out[i] = sum / float64(min(i+1, window))
	}
	return out
}
