package stereo

// ComputeDisparity maps depth to a horizontal shift in pixels.
// Low depth (far) gets the largest shift. Values are not clamped here.
func ComputeDisparity(depth Field, shiftPixels float64) Field {
	disp := NewField(depth.W, depth.H)
	for i, d := range depth.Data {
		disp.Data[i] = shiftPixels * (1 - d)
	}
	return disp
}
