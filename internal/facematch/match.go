package facematch

// MarkerInfo represents a legacy marker's relevant fields for matching
type MarkerInfo struct {
	UID        string
	Name       string
	SubjSrc    string
	X, Y, W, H float64 // relative [0-1] top-left corner plus size
}

// MatchResult represents the result of matching a stored face to a marker
type MatchResult struct {
	MarkerUID string
	Name      string
	SubjSrc   string
	IoU       float64
}

// IsManual reports whether the matched marker was confirmed by a user.
func (r *MatchResult) IsManual() bool {
	return r.SubjSrc == "manual"
}

// MatchFaceToMarkers finds the best matching marker for a face bounding box.
// faceBBox is in raw pixel coordinates [x1, y1, x2, y2]; width and height are
// the source image dimensions used to bring it into the markers' relative
// coordinate space. Returns nil if no marker matches above the IoU threshold.
func MatchFaceToMarkers(faceBBox []float64, markers []MarkerInfo, width, height int, iouThreshold float64) *MatchResult {
	if len(faceBBox) != 4 || width <= 0 || height <= 0 {
		return nil
	}

	relative := ConvertPixelBBoxToRelative(faceBBox, width, height)

	var bestMarker *MarkerInfo
	bestIoU := 0.0

	for i := range markers {
		markerCorners := MarkerToCornerBBox(markers[i].X, markers[i].Y, markers[i].W, markers[i].H)
		iou := ComputeIoU(relative, markerCorners)
		if iou > bestIoU {
			bestIoU = iou
			bestMarker = &markers[i]
		}
	}

	if bestMarker == nil || bestIoU < iouThreshold {
		return nil
	}

	return &MatchResult{
		MarkerUID: bestMarker.UID,
		Name:      bestMarker.Name,
		SubjSrc:   bestMarker.SubjSrc,
		IoU:       bestIoU,
	}
}
