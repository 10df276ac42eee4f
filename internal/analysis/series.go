package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/stat"
)

var ErrShortSeries = errors.New("analysis: series too short")

// Autocorrelation returns the normalized autocorrelation of x for lags
// 0..maxLag. The series is zero padded to twice its length so the circular
// correlation computed by the FFT equals the linear one. A maxLag of zero or
// beyond the series uses len(x)-1.
func Autocorrelation(x []float64, maxLag int) ([]float64, error) {
	n := len(x)
	if n < 2 {
		return nil, ErrShortSeries
	}
	if maxLag <= 0 || maxLag >= n {
		maxLag = n - 1
	}

	mean := stat.Mean(x, nil)
	padded := make([]float64, 2*n)
	for i, v := range x {
		padded[i] = v - mean
	}
	spec := fft.FFTReal(padded)
	for k, c := range spec {
		spec[k] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	corr := fft.IFFT(spec)

	c0 := real(corr[0]) / float64(n)
	acf := make([]float64, maxLag+1)
	if c0 == 0 {
		acf[0] = 1
		return acf, nil
	}
	for k := range acf {
		acf[k] = real(corr[k]) / float64(n-k) / c0
	}
	return acf, nil
}

// Inefficiency is the statistical inefficiency g = 1 + 2 sum rho(k), summed
// until the autocorrelation first drops to zero. g samples of the series
// carry about as much information as one independent sample.
func Inefficiency(acf []float64) float64 {
	g := 1.0
	for k := 1; k < len(acf); k++ {
		if acf[k] <= 0 {
			break
		}
		g += 2 * acf[k]
	}
	return g
}

// PowerSpectrum returns the one-sided power spectrum of x sampled every dt,
// with its mean removed. freq[k] = k/(n dt) for k up to the Nyquist index.
func PowerSpectrum(x []float64, dt float64) (freq, power []float64, err error) {
	n := len(x)
	if n < 2 {
		return nil, nil, ErrShortSeries
	}
	if dt <= 0 {
		return nil, nil, fmt.Errorf("analysis: sample spacing must be positive, got %g", dt)
	}
	mean := stat.Mean(x, nil)
	centred := make([]float64, n)
	for i, v := range x {
		centred[i] = v - mean
	}
	spec := fft.FFTReal(centred)

	half := n/2 + 1
	freq = make([]float64, half)
	power = make([]float64, half)
	for k := range half {
		freq[k] = float64(k) / (float64(n) * dt)
		a := cmplx.Abs(spec[k])
		power[k] = a * a / float64(n)
	}
	return freq, power, nil
}

// Peak returns the frequency of the largest non-zero-frequency component.
func Peak(freq, power []float64) float64 {
	best := 0
	for k := 1; k < len(power); k++ {
		if best == 0 || power[k] > power[best] {
			best = k
		}
	}
	if best == 0 {
		return 0
	}
	return freq[best]
}

// BlockAverage splits x into blocks equal blocks, dropping the remainder at
// the start, and estimates the standard error of the mean from the spread
// of the block means.
func BlockAverage(x []float64, blocks int) (mean, stderr float64, err error) {
	if blocks < 2 {
		return 0, 0, fmt.Errorf("analysis: need at least 2 blocks, got %d", blocks)
	}
	size := len(x) / blocks
	if size == 0 {
		return 0, 0, ErrShortSeries
	}
	x = x[len(x)-size*blocks:]
	means := make([]float64, blocks)
	for b := range blocks {
		means[b] = stat.Mean(x[b*size:(b+1)*size], nil)
	}
	mean, sd := stat.MeanStdDev(means, nil)
	return mean, sd / math.Sqrt(float64(blocks)), nil
}

// Report summarizes one series.
type Report struct {
	Samples      int
	Mean         float64
	StdDev       float64
	Inefficiency float64
	// StdErr is the standard error of the mean corrected for correlation.
	StdErr float64
	// CorrelationTime is (g-1)/2 sample spacings, in time units.
	CorrelationTime float64
	// PeakFrequency is the dominant frequency of the fluctuations.
	PeakFrequency float64
}

func Analyze(x []float64, dt float64) (Report, error) {
	acf, err := Autocorrelation(x, len(x)/2)
	if err != nil {
		return Report{}, err
	}
	freq, power, err := PowerSpectrum(x, dt)
	if err != nil {
		return Report{}, err
	}
	mean, sd := stat.MeanStdDev(x, nil)
	g := Inefficiency(acf)
	return Report{
		Samples:         len(x),
		Mean:            mean,
		StdDev:          sd,
		Inefficiency:    g,
		StdErr:          sd * math.Sqrt(g/float64(len(x))),
		CorrelationTime: 0.5 * (g - 1) * dt,
		PeakFrequency:   Peak(freq, power),
	}, nil
}
