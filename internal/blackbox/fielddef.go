package blackbox

import "fmt"

// knownPredictors and knownEncodings gate the ids accepted while building
// field tables; anything else is a malformed encoding (an id the decoder
// has no behavior for).
var knownPredictors = map[PredictorKind]bool{
	PredictorZero: true, PredictorPrevious: true, PredictorStraightLine: true,
	PredictorAverage2: true, PredictorMinThrottle: true, PredictorMotor0: true,
	PredictorInc: true, PredictorHomeCoord: true, Predictor1500: true,
	PredictorVBatRef: true, PredictorLastMainFrameTime: true, PredictorMinMotor: true,
	PredictorHomeLat: true, predictorHomeCoordLon: true,
}

var knownEncodings = map[EncodingKind]bool{
	EncodingSignedVB: true, EncodingUnsignedVB: true, EncodingNeg14Bit: true,
	EncodingTag8_8SVB: true, EncodingTag2_3S32: true, EncodingTag8_4S16: true,
	EncodingNull: true, EncodingTag2_3SVarint: true,
}

var fieldLetters = []struct {
	ft     FrameType
	letter byte
}{
	{FrameIntra, 'I'},
	{FrameSlow, 'S'},
	{FrameGPS, 'G'},
	{FrameGPSHome, 'H'},
}

// buildFieldDefs merges the raw "Field <T> name/signed/predictor/encoding"
// header arrays into per-frame-type field tables, assigning group indices
// and validating every predictor/encoding id along the way. The P frame
// type reuses I's names but carries its own signed/predictor/encoding
// lists, matching the wire format's delta-frame convention.
func buildFieldDefs(headers Headers) (map[FrameType][]FieldDef, error) {
	result := make(map[FrameType][]FieldDef)

	for _, lt := range fieldLetters {
		defs, ok, err := buildOneFrameType(headers, lt.letter)
		if err != nil {
			return nil, err
		}
		if ok {
			result[lt.ft] = defs
		}
	}

	iDefs, haveI := result[FrameIntra]
	if !haveI {
		// Partial or missing header information: nothing to attach P to.
		return result, nil
	}
	pDefs, ok, err := buildOneFrameType(headers, 'P')
	if err != nil {
		return nil, err
	}
	if ok {
		if len(pDefs) != len(iDefs) {
			return nil, newMalformedHeaderError(0, "Field P lists length does not match Field I lists")
		}
		for i := range pDefs {
			pDefs[i].Name = iDefs[i].Name
		}
		result[FrameInter] = pDefs
	}
	return result, nil
}

func buildOneFrameType(headers Headers, letter byte) ([]FieldDef, bool, error) {
	prefix := "Field " + string(letter) + " "
	names, hasNames := headerRawSlice(headers[prefix+"name"])
	if !hasNames && letter == 'P' {
		// P frames take their names from the I frame; the P block exists
		// when it declares its own predictor list.
		if _, ok := headers[prefix+"predictor"]; ok {
			names, hasNames = headerRawSlice(headers["Field I name"])
		}
	}
	if !hasNames {
		return nil, false, nil
	}
	signedRaw, hasSigned := headerRawSlice(headers[prefix+"signed"])
	predictorRaw, hasPredictor := headerRawSlice(headers[prefix+"predictor"])
	encodingRaw, hasEncoding := headerRawSlice(headers[prefix+"encoding"])
	if !hasSigned || !hasPredictor || !hasEncoding {
		return nil, false, newMalformedHeaderError(0, fmt.Sprintf("incomplete field definition for %q", string(letter)))
	}
	n := len(names)
	if len(signedRaw) != n || len(predictorRaw) != n || len(encodingRaw) != n {
		return nil, false, newMalformedHeaderError(0, fmt.Sprintf("field list length mismatch for %q", string(letter)))
	}

	defs := make([]FieldDef, n)
	for i := 0; i < n; i++ {
		name, ok := names[i].(string)
		if !ok {
			return nil, false, newMalformedHeaderError(0, "field name is not a string")
		}
		signed, err := asInt64(signedRaw[i])
		if err != nil {
			return nil, false, newMalformedHeaderError(0, "field signed flag is not an integer")
		}
		predictor, err := asInt64(predictorRaw[i])
		if err != nil {
			return nil, false, newMalformedHeaderError(0, "field predictor id is not an integer")
		}
		encoding, err := asInt64(encodingRaw[i])
		if err != nil {
			return nil, false, newMalformedHeaderError(0, "field encoding id is not an integer")
		}

		predictorKind := PredictorKind(predictor)
		// GPS_coord[1] (longitude) historically mis-declares predictor 7
		// (HOME_COORD, latitude's predictor); substitute the synthetic
		// longitude predictor the way the reference decoder does at
		// field-table build time.
		if name == "GPS_coord[1]" && predictorKind == PredictorHomeCoord {
			predictorKind = predictorHomeCoordLon
		}
		if !knownPredictors[predictorKind] {
			return nil, false, &encodingError{detail: fmt.Sprintf("no predictor found for %d", predictor)}
		}
		encodingKind := EncodingKind(encoding)
		if !knownEncodings[encodingKind] {
			return nil, false, &encodingError{detail: fmt.Sprintf("no decoder found for %d", encoding)}
		}

		defs[i] = FieldDef{
			Name:      name,
			Signed:    signed != 0,
			Predictor: predictorKind,
			Encoding:  encodingKind,
		}
	}
	assignGroupIndices(defs)
	return defs, true, nil
}

// assignGroupIndices marks each field's position within the run of
// consecutive values produced by a single encoding read: TAG2_3S32 and
// TAG8_4S16 always emit fixed-size groups (3 and 4), while TAG8_8SVB emits
// a variable-size run capped at 8.
func assignGroupIndices(defs []FieldDef) {
	i := 0
	for i < len(defs) {
		size := groupSizeAt(defs, i)
		for j := 0; j < size && i+j < len(defs); j++ {
			defs[i+j].GroupIndex = j
		}
		i += size
	}
}

func groupSizeAt(defs []FieldDef, i int) int {
	switch defs[i].Encoding {
	case EncodingTag2_3S32:
		return 3
	case EncodingTag8_4S16:
		return 4
	case EncodingTag8_8SVB:
		size := 1
		for i+size < len(defs) && size < 8 && defs[i+size].Encoding == EncodingTag8_8SVB {
			size++
		}
		return size
	default:
		return 1
	}
}

func headerRawSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case nil:
		return nil, false
	default:
		return []interface{}{s}, true
	}
}

func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not an integer: %v", v)
	}
}
