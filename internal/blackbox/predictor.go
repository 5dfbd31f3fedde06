package blackbox

import "strconv"

// Context carries the state predictors and field-decoding consult while a
// session is being decoded: header lookups, the field-definition tables,
// and the sliding history of recently accepted frames.
type Context struct {
	headers        Headers
	dataVersion    int64
	fieldDefs      map[FrameType][]FieldDef
	fieldDefCounts map[FrameType]int

	frameCount int
	frameType  FrameType
	fieldIndex int

	// pastFrames holds the current, previous, and second-previous I/P
	// frame, shifted on every I/P add_frame call; an I-frame resets all
	// three slots to itself. S/GPS/GPS_HOME frames have their own slots
	// below and never enter this history.
	pastFrames       [3]Frame
	lastGPSFrame     Frame
	lastGPSHomeFrame Frame
	lastSlow         Frame

	currentFrame []int32

	lastIter          int64
	readFrameCount    int64
	invalidFrameCount int64

	iInterval      int64
	pIntervalNum   int64
	pIntervalDenom int64

	namesToIndices map[FrameType]map[string]int
}

func newContext(headers Headers, fieldDefs map[FrameType][]FieldDef) *Context {
	ctx := &Context{
		headers:        headers,
		dataVersion:    headerInt64(headers, "Data version", 1),
		fieldDefs:      fieldDefs,
		fieldDefCounts: make(map[FrameType]int, len(fieldDefs)),
		lastIter:       -1,
		namesToIndices: make(map[FrameType]map[string]int, len(fieldDefs)),
	}
	for ft, defs := range fieldDefs {
		ctx.fieldDefCounts[ft] = len(defs)
		names := make(map[string]int, len(defs))
		for i, fd := range defs {
			names[fd.Name] = i
		}
		ctx.namesToIndices[ft] = names
	}
	ctx.iInterval = headerInt64(headers, "I interval", 1)
	if ctx.iInterval < 1 {
		ctx.iInterval = 1
	}
	ctx.pIntervalNum, ctx.pIntervalDenom = parsePInterval(headers)
	return ctx
}

// parsePInterval accepts either a bare integer (legacy "P interval:N"
// meaning a denominator with implicit numerator 1) or the "N/M" form used
// by later firmware.
func parsePInterval(headers Headers) (num, denom int64) {
	v, ok := headers["P interval"]
	if !ok {
		return 1, headerInt64(headers, "P interval", 0)
	}
	switch p := v.(type) {
	case int64:
		return 1, p
	case string:
		n, d, ok := splitRatio(p)
		if ok {
			return n, d
		}
		return 1, 0
	default:
		return 1, 0
	}
}

func splitRatio(s string) (num, denom int64, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			n, errN := strconv.ParseInt(s[:i], 10, 64)
			d, errD := strconv.ParseInt(s[i+1:], 10, 64)
			if errN == nil && errD == nil {
				return n, d, true
			}
			return 0, 0, false
		}
	}
	return 0, 0, false
}

// addFrame folds a successfully decoded frame into the rolling history.
// Each frame type owns its own slot; only I/P frames shift pastFrames.
func (c *Context) addFrame(f Frame) {
	switch f.Type {
	case FrameIntra:
		c.pastFrames = [3]Frame{f, f, f}
	case FrameInter:
		c.pastFrames = [3]Frame{f, c.pastFrames[0], c.pastFrames[1]}
	case FrameGPS:
		c.lastGPSFrame = f
	case FrameGPSHome:
		c.lastGPSHomeFrame = f
	case FrameSlow:
		c.lastSlow = f
	}
	c.frameCount++
}

// getLastSlowValue returns the value of the field at the current
// fieldIndex from the most recently decoded S frame, or fallback if no S
// frame has been decoded yet or the index is out of range.
func (c *Context) getLastSlowValue(fallback int32) int32 {
	if c.fieldIndex < 0 || c.fieldIndex >= len(c.lastSlow.Data) {
		return fallback
	}
	return c.lastSlow.Data[c.fieldIndex]
}

// getPastValue returns the value of the field at the current fieldIndex
// from the history slot at age (0 = last, 1 = last2), or fallback if that
// slot has no data yet or the index is out of range.
func (c *Context) getPastValue(age int, fallback int32) int32 {
	if age < 0 || age > 2 {
		return fallback
	}
	frame := c.pastFrames[age]
	if c.fieldIndex < 0 || c.fieldIndex >= len(frame.Data) {
		return fallback
	}
	return frame.Data[c.fieldIndex]
}

// getCurrentValueByName looks up a field already decoded earlier within
// the frame currently being built, by name rather than by index.
func (c *Context) getCurrentValueByName(frameType FrameType, name string, fallback int32) int32 {
	idx, ok := c.namesToIndices[frameType][name]
	if !ok || idx < 0 || idx >= len(c.currentFrame) {
		return fallback
	}
	return c.currentFrame[idx]
}

// shouldHaveFrameAt reports whether firmware configured with this
// session's I/P interval ratio would have logged a P-frame at the given
// loop iteration.
func (c *Context) shouldHaveFrameAt(index int64) bool {
	if c.pIntervalDenom == 0 {
		return true
	}
	m := index % c.iInterval
	return ((m+c.pIntervalNum-1)%c.pIntervalDenom) < c.pIntervalNum
}

// countSkippedFrames counts how many loop iterations between the last
// accepted iteration and the next one that should have produced a frame
// were skipped by the duty-cycled P-interval, so the INC predictor can
// advance by more than one.
func (c *Context) countSkippedFrames() int64 {
	if c.lastIter == -1 {
		return 0
	}
	index := c.lastIter + 1
	for !c.shouldHaveFrameAt(index) {
		index++
	}
	return index - c.lastIter - 1
}

func floorDivInt32(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// predictorFunc maps a raw decoded value to its final logical value using
// a predictor-specific baseline drawn from history or headers.
type predictorFunc func(raw int32, ctx *Context) int32

var predictorTable = map[PredictorKind]predictorFunc{
	PredictorZero: func(raw int32, _ *Context) int32 {
		return raw
	},
	PredictorPrevious: func(raw int32, ctx *Context) int32 {
		return raw + ctx.getPastValue(0, 0)
	},
	PredictorStraightLine: func(raw int32, ctx *Context) int32 {
		prev := ctx.getPastValue(0, 0)
		prev2 := ctx.getPastValue(1, prev)
		return raw + 2*prev - prev2
	},
	PredictorAverage2: func(raw int32, ctx *Context) int32 {
		prev := ctx.getPastValue(0, 0)
		prev2 := ctx.getPastValue(1, prev)
		return raw + floorDivInt32(prev+prev2, 2)
	},
	PredictorMinThrottle: func(raw int32, ctx *Context) int32 {
		return raw + int32(headerInt64(ctx.headers, "minthrottle", 0))
	},
	PredictorMotor0: func(raw int32, ctx *Context) int32 {
		return raw + ctx.getCurrentValueByName(FrameIntra, "motor[0]", 0)
	},
	PredictorInc: func(_ int32, ctx *Context) int32 {
		if ctx.frameType == FrameSlow {
			return 1 + ctx.getLastSlowValue(0)
		}
		return 1 + ctx.getPastValue(0, 0) + int32(ctx.countSkippedFrames())
	},
	PredictorHomeCoord: func(raw int32, ctx *Context) int32 {
		if len(ctx.lastGPSHomeFrame.Data) == 0 {
			return 0
		}
		return raw + ctx.lastGPSHomeFrame.Data[0]
	},
	predictorHomeCoordLon: func(raw int32, ctx *Context) int32 {
		if len(ctx.lastGPSHomeFrame.Data) < 2 {
			return 0
		}
		return raw + ctx.lastGPSHomeFrame.Data[1]
	},
	Predictor1500: func(raw int32, _ *Context) int32 {
		return raw + 1500
	},
	PredictorVBatRef: func(raw int32, ctx *Context) int32 {
		return raw + int32(headerInt64(ctx.headers, "vbatref", 0))
	},
	PredictorLastMainFrameTime: func(raw int32, ctx *Context) int32 {
		ti, ok := ctx.namesToIndices[FrameIntra]["time"]
		frame := ctx.pastFrames[1]
		if !ok || ti >= len(frame.Data) {
			return raw
		}
		return raw + frame.Data[ti]
	},
	PredictorMinMotor: func(raw int32, ctx *Context) int32 {
		outputs := headerInt64Slice(ctx.headers, "motorOutput")
		if len(outputs) == 0 {
			return raw
		}
		return raw + int32(outputs[0])
	},
	// HOME_LAT is wired as a synonym of HOME_COORD for the latitude field.
	PredictorHomeLat: func(raw int32, ctx *Context) int32 {
		if len(ctx.lastGPSHomeFrame.Data) == 0 {
			return 0
		}
		return raw + ctx.lastGPSHomeFrame.Data[0]
	},
}
