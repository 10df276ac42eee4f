// Package analysis provides statistics for the scalar time series a run
// records: autocorrelation, power spectra and error estimates that account
// for correlated samples.
//
//   - [Autocorrelation]: normalized autocorrelation function via FFT
//   - [Inefficiency]: statistical inefficiency from the autocorrelation
//   - [PowerSpectrum]: one-sided power spectrum of a sampled series
//   - [BlockAverage]: mean and standard error from block means
//   - [Analyze]: all of the above for one series
//
// # Error Bars
//
// Successive summaries of a run are correlated, so the naive standard error
// underestimates the uncertainty of a mean. [Analyze] scales it by the
// statistical inefficiency g:
//
//	r, err := analysis.Analyze(values, dt)
//	fmt.Printf("%.4f +/- %.4f (g = %.1f)\n", r.Mean, r.StdErr, r.Inefficiency)
package analysis
