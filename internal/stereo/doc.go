// Package stereo turns a single RGB frame into a side-by-side stereo frame.
//
// Depth is approximated from heavily blurred luminance, mapped to a
// horizontal disparity per pixel, and each eye is resampled from the source
// with bilinear interpolation and replicated borders. Every function here is
// pure: identical input always yields byte-identical output.
package stereo
