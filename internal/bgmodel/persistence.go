package bgmodel

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/chewxy/math32"

	"github.com/banshee-data/layerbg/internal/fsutil"
	"github.com/banshee-data/layerbg/internal/monitoring"
)

// SaveMode selects what Save writes.
type SaveMode int

const (
	// SaveInfo writes the per-pixel state.
	SaveInfo SaveMode = iota
	// SaveParams writes only the scalar tunables.
	SaveParams
	// SaveBoth writes the tunables followed by the per-pixel state.
	SaveBoth
)

const (
	headerInfo     = "MODEL_INFO"
	headerParams   = "MODEL_PARAS"
	headerBoth     = "MODEL_PARAS_INFO"
	maxLineBytes   = 64 << 20
	modelFilePerms = 0o644
)

func (s SaveMode) header() string {
	switch s {
	case SaveParams:
		return headerParams
	case SaveBoth:
		return headerBoth
	default:
		return headerInfo
	}
}

func (s SaveMode) String() string {
	switch s {
	case SaveParams:
		return "params"
	case SaveBoth:
		return "both"
	default:
		return "info"
	}
}

// ParseSaveMode parses "info", "params" or "both".
func ParseSaveMode(s string) (SaveMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SaveInfo, nil
	case "params":
		return SaveParams, nil
	case "both":
		return SaveBoth, nil
	}
	return SaveInfo, fmt.Errorf("unknown save mode %q", s)
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

func parseFloat(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	return float32(v), err
}

// paramField binds a KEY: value line to one Params field.
type paramField struct {
	key string
	get func(p *Params) string
	set func(p *Params, v string) error
}

func floatField(key string, f func(p *Params) *float32) paramField {
	return paramField{
		key: key,
		get: func(p *Params) string { return formatFloat(*f(p)) },
		set: func(p *Params, v string) error {
			x, err := parseFloat(v)
			if err != nil {
				return err
			}
			*f(p) = x
			return nil
		},
	}
}

func intField(key string, f func(p *Params) *int) paramField {
	return paramField{
		key: key,
		get: func(p *Params) string { return strconv.Itoa(*f(p)) },
		set: func(p *Params, v string) error {
			x, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*f(p) = x
			return nil
		},
	}
}

func boolField(key string, f func(p *Params) *bool) paramField {
	return paramField{
		key: key,
		get: func(p *Params) string { return strconv.FormatBool(*f(p)) },
		set: func(p *Params, v string) error {
			x, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*f(p) = x
			return nil
		},
	}
}

var paramFields = []paramField{
	intField("MAX_MODES", func(p *Params) *int { return &p.MaxModes }),
	floatField("TEXTURE_WEIGHT", func(p *Params) *float32 { return &p.Metric.TextureWeight }),
	floatField("COLOR_WEIGHT", func(p *Params) *float32 { return &p.Metric.ColorWeight }),
	floatField("BACKGROUND_MODEL_PERCENT", func(p *Params) *float32 { return &p.BackgroundModelPercent }),
	floatField("RELIABLE_BACKGROUND_WEIGHT", func(p *Params) *float32 { return &p.ReliableBackgroundWeight }),
	floatField("MIN_LAYER_WEIGHT", func(p *Params) *float32 { return &p.MinLayerWeight }),
	boolField("LAYER_PRUNING", func(p *Params) *bool { return &p.LayerPruning }),
	floatField("WEIGHT_HYSTERESIS", func(p *Params) *float32 { return &p.WeightHysteresis }),
	floatField("UNRELIABLE_INFLATION", func(p *Params) *float32 { return &p.UnreliableInflation }),
	floatField("INITIAL_MODE_WEIGHT", func(p *Params) *float32 { return &p.InitialModeWeight }),
	floatField("UPDATE_THRESHOLD", func(p *Params) *float32 { return &p.UpdateThreshold }),
	floatField("GENERATE_THRESHOLD", func(p *Params) *float32 { return &p.GenerateThreshold }),
	floatField("BG_THRESHOLD", func(p *Params) *float32 { return &p.BgThreshold }),
	intField("PERSISTENCE_FRAMES", func(p *Params) *int { return &p.PersistenceFrames }),
	floatField("FRAME_DURATION", func(p *Params) *float32 { return &p.FrameSeconds }),
	floatField("MODE_LEARN_RATE", func(p *Params) *float32 { return &p.ModeLearnRate }),
	floatField("WEIGHT_LEARN_RATE", func(p *Params) *float32 { return &p.WeightLearnRate }),
	floatField("TEXTURE_TOLERANCE", func(p *Params) *float32 { return &p.Metric.TextureTolerance }),
	floatField("SHADOW_RATE", func(p *Params) *float32 { return &p.Metric.ShadowRate }),
	floatField("HIGHLIGHT_RATE", func(p *Params) *float32 { return &p.Metric.HighlightRate }),
	floatField("RANGE_MARGIN", func(p *Params) *float32 { return &p.Metric.RangeMargin }),
	floatField("NOISE_OFFSET", func(p *Params) *float32 { return &p.Metric.NoiseOffset }),
	floatField("MIN_NOISED_ANGLE", func(p *Params) *float32 { return &p.Metric.MinNoisedAngle }),
	intField("SMOOTHING_HALF_WIDTH", func(p *Params) *int { return &p.SmoothingHalfWidth }),
	floatField("SMOOTHING_SIGMA", func(p *Params) *float32 { return &p.SmoothingSigma }),
}

// Save writes the model as text.
func (m *Model) Save(w io.Writer, mode SaveMode) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, mode.header())
	if mode == SaveParams || mode == SaveBoth {
		for _, f := range paramFields {
			fmt.Fprintf(bw, "%s: %s\n", f.key, f.get(&m.params))
		}
	}
	if mode == SaveInfo || mode == SaveBoth {
		fmt.Fprintf(bw, "MODE_SLOTS: %d\n", m.params.MaxModes)
		fmt.Fprintf(bw, "DESCRIPTOR_LENGTH: %d\n", m.descLen)
		fmt.Fprintf(bw, "CHANNELS: %d\n", m.channels)
		fmt.Fprintf(bw, "WIDTH: %d\n", m.width)
		fmt.Fprintf(bw, "HEIGHT: %d\n", m.height)
		fmt.Fprintf(bw, "FRAME: %d\n", m.frame)
		var line []byte
		for i := range m.pixels {
			line = m.appendPixel(line[:0], i)
			if _, err := bw.Write(line); err != nil {
				return fmt.Errorf("write pixel %d: %w", i, err)
			}
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush model: %w", err)
	}
	return nil
}

func (m *Model) appendPixel(b []byte, pixel int) []byte {
	px := &m.pixels[pixel]
	modes := m.pixelModes(pixel)
	sp := func(b []byte) []byte { return append(b, ' ') }
	f := func(b []byte, v float32) []byte { return strconv.AppendFloat(sp(b), float64(v), 'g', -1, 32) }
	u := func(b []byte, v uint64) []byte { return strconv.AppendUint(sp(b), v, 10) }

	b = strconv.AppendInt(b, int64(px.Active), 10)
	b = strconv.AppendInt(sp(b), int64(px.Reliable), 10)
	b = strconv.AppendInt(sp(b), int64(px.CurrentLayer), 10)
	for r := 0; r < px.Active; r++ {
		b = strconv.AppendInt(sp(b), int64(px.Rank[r]), 10)
	}
	for r := 0; r < px.Active; r++ {
		md := &modes[px.Rank[r]]
		for c := 0; c < m.channels; c++ {
			b = f(b, md.Mean[c])
		}
		for c := 0; c < m.channels; c++ {
			b = f(b, md.Max[c])
		}
		for c := 0; c < m.channels; c++ {
			b = f(b, md.Min[c])
		}
		for _, v := range md.Texture {
			b = f(b, v)
		}
		b = f(b, md.Weight)
		b = f(b, md.MaxWeight)
		b = strconv.AppendInt(sp(b), int64(md.Layer), 10)
		b = u(b, md.FirstSeen)
		b = u(b, md.LastSeen)
		b = u(b, md.Matches)
		b = u(b, md.PromotedAt)
	}
	b = strconv.AppendInt(sp(b), int64(px.pendingFrames), 10)
	b = strconv.AppendInt(sp(b), int64(px.pendingMode), 10)
	return append(b, '\n')
}

// SaveFile writes the model to path, replacing any previous file atomically.
func (m *Model) SaveFile(fsys fsutil.FileSystem, path string, mode SaveMode) error {
	var buf bytes.Buffer
	if err := m.Save(&buf, mode); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(fsys, path, buf.Bytes(), modelFilePerms); err != nil {
		return fmt.Errorf("save model %s: %w", path, err)
	}
	monitoring.Logf("[Model] saved %s mode=%s frame=%d bytes=%d", path, mode, m.frame, buf.Len())
	return nil
}

// LoadFile reads a model file written by SaveFile.
func (m *Model) LoadFile(fsys fsutil.FileSystem, path string) error {
	f, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("open model %s: %w", path, err)
	}
	defer f.Close()
	if err := m.Load(f); err != nil {
		return fmt.Errorf("load model %s: %w", path, err)
	}
	monitoring.Logf("[Model] loaded %s frame=%d max_modes=%d", path, m.frame, m.params.MaxModes)
	return nil
}

type infoHeader struct {
	slots, descLen, channels, width, height int
	frame                                   uint64
	seen                                    map[string]bool
}

// Load replaces the model state with the contents of r. The live model is
// left unmodified when the file is malformed or was written for a different
// frame size, channel count or descriptor length. A different mode slot
// count is adopted by reallocating every pixel.
//
// The file holds no distance or foreground maps, so Load zeroes them and
// drops any modes on pixels the live mask excludes. A model matches the one
// that saved the file once it has processed a full frame; frames restricted
// to a region of interest before that smooth against the zeroed distances.
func (m *Model) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		return fmt.Errorf("empty file: %w", ErrBadFormat)
	}
	kind := strings.TrimSpace(sc.Text())
	wantParams := kind == headerParams || kind == headerBoth
	wantInfo := kind == headerInfo || kind == headerBoth
	if !wantParams && !wantInfo {
		return fmt.Errorf("unknown file type %q: %w", kind, ErrBadFormat)
	}

	params := m.params
	params.LBPLevels = append(params.LBPLevels[:0:0], m.params.LBPLevels...)
	hdr := infoHeader{seen: map[string]bool{}}
	fields := make(map[string]paramField, len(paramFields))
	for _, f := range paramFields {
		fields[f.key] = f
	}

	var first string
	lineNo := 1
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			first = line
			break
		}
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if f, ok := fields[key]; ok && wantParams {
			if err := f.set(&params, val); err != nil {
				return fmt.Errorf("line %d %s: %v: %w", lineNo, key, err, ErrBadFormat)
			}
			continue
		}
		if err := hdr.set(key, val); err != nil {
			return fmt.Errorf("line %d: %v: %w", lineNo, err, ErrBadFormat)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read model: %w", err)
	}

	if !wantInfo {
		if err := params.validate(); err != nil {
			return fmt.Errorf("%v: %w", err, ErrBadFormat)
		}
		m.applyParams(params, true)
		return nil
	}

	if err := hdr.check(m); err != nil {
		return err
	}
	params.MaxModes = hdr.slots
	if err := params.validate(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrBadFormat)
	}

	pixels, modes, tex := allocate(m.width*m.height, hdr.slots, m.descLen)
	scratch := &Model{
		params:   params,
		width:    m.width,
		height:   m.height,
		channels: m.channels,
		descLen:  m.descLen,
		pixels:   pixels,
		modes:    modes,
	}
	for i := range pixels {
		if i > 0 {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return fmt.Errorf("read pixel %d: %w", i, err)
				}
				return fmt.Errorf("file ends at pixel %d of %d: %w", i, len(pixels), ErrBadFormat)
			}
			first = sc.Text()
		} else if first == "" {
			return fmt.Errorf("no pixel records: %w", ErrBadFormat)
		}
		if err := scratch.parsePixel(i, first); err != nil {
			return fmt.Errorf("pixel %d: %v: %w", i, err, ErrBadFormat)
		}
	}

	m.applyParams(params, false)
	m.pixels, m.modes, m.texture = pixels, modes, tex
	m.frame = hdr.frame
	clear(m.raw.Pix)
	clear(m.smoothed.Pix)
	clear(m.fg.Pix)
	for i, ok := range m.valid {
		if !ok {
			m.clearPixel(i)
		}
	}
	return nil
}

func (h *infoHeader) set(key, val string) error {
	var dst *int
	switch key {
	case "MODE_SLOTS":
		dst = &h.slots
	case "DESCRIPTOR_LENGTH":
		dst = &h.descLen
	case "CHANNELS":
		dst = &h.channels
	case "WIDTH":
		dst = &h.width
	case "HEIGHT":
		dst = &h.height
	case "FRAME":
		v, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("FRAME: %v", err)
		}
		h.frame = v
		h.seen[key] = true
		return nil
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: %v", key, err)
	}
	*dst = v
	h.seen[key] = true
	return nil
}

func (h *infoHeader) check(m *Model) error {
	for _, k := range []string{"MODE_SLOTS", "DESCRIPTOR_LENGTH", "CHANNELS", "WIDTH", "HEIGHT"} {
		if !h.seen[k] {
			return fmt.Errorf("missing %s: %w", k, ErrBadFormat)
		}
	}
	if h.width != m.width || h.height != m.height {
		return fmt.Errorf("file is %dx%d, model is %dx%d: %w", h.width, h.height, m.width, m.height, ErrDimensionMismatch)
	}
	if h.channels != m.channels {
		return fmt.Errorf("file has %d channels, model has %d: %w", h.channels, m.channels, ErrDimensionMismatch)
	}
	if h.descLen != m.descLen {
		return fmt.Errorf("file descriptor length %d, model %d: %w", h.descLen, m.descLen, ErrDescriptorMismatch)
	}
	if h.slots < 1 || h.slots > MaxModesLimit {
		return fmt.Errorf("MODE_SLOTS %d outside [1, %d]: %w", h.slots, MaxModesLimit, ErrBadFormat)
	}
	return nil
}

// applyParams installs loaded tunables and rebuilds the smoother when its
// settings changed. With migrate set, a different MaxModes reallocates the
// live pixel state.
func (m *Model) applyParams(p Params, migrate bool) {
	old := m.params
	if migrate && p.MaxModes != old.MaxModes {
		m.resize(p.MaxModes)
	}
	m.params = p
	if p.SmoothingHalfWidth != old.SmoothingHalfWidth || p.SmoothingSigma != old.SmoothingSigma {
		if err := m.buildSmoother(); err != nil {
			monitoring.Logf("[Model] keeping previous smoother: %v", err)
			m.params.SmoothingHalfWidth, m.params.SmoothingSigma = old.SmoothingHalfWidth, old.SmoothingSigma
		}
	}
}

// fieldReader walks the whitespace-separated tokens of one pixel line. The
// first error sticks.
type fieldReader struct {
	tok []string
	pos int
	err error
}

func (f *fieldReader) next() string {
	if f.err != nil {
		return ""
	}
	if f.pos >= len(f.tok) {
		f.err = fmt.Errorf("line has %d fields, need more", len(f.tok))
		return ""
	}
	s := f.tok[f.pos]
	f.pos++
	return s
}

func (f *fieldReader) int() int {
	s := f.next()
	if f.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		f.err = err
	}
	return v
}

func (f *fieldReader) uint() uint64 {
	s := f.next()
	if f.err != nil {
		return 0
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		f.err = err
	}
	return v
}

func (f *fieldReader) float() float32 {
	s := f.next()
	if f.err != nil {
		return 0
	}
	v, err := parseFloat(s)
	if err != nil {
		f.err = err
	}
	return v
}

func (m *Model) parsePixel(pixel int, line string) error {
	fr := &fieldReader{tok: strings.Fields(line)}
	px := &m.pixels[pixel]
	modes := m.pixelModes(pixel)
	slots := m.params.MaxModes

	active, reliable, current := fr.int(), fr.int(), fr.int()
	if fr.err != nil {
		return fr.err
	}
	if active < 0 || active > slots || reliable < 0 || reliable > active || current < 0 {
		return fmt.Errorf("counts active=%d reliable=%d layer=%d out of range", active, reliable, current)
	}

	used := make([]bool, slots)
	for r := 0; r < active; r++ {
		s := fr.int()
		if fr.err != nil {
			return fr.err
		}
		if s < 0 || s >= slots || used[s] {
			return fmt.Errorf("rank %d: bad slot %d", r, s)
		}
		used[s] = true
		px.Rank[r] = uint8(s)
	}
	free := active
	for s := 0; s < slots; s++ {
		if !used[s] {
			px.Rank[free] = uint8(s)
			free++
		}
	}

	for r := 0; r < active; r++ {
		md := &modes[px.Rank[r]]
		for c := 0; c < m.channels; c++ {
			md.Mean[c] = fr.float()
		}
		for c := 0; c < m.channels; c++ {
			md.Max[c] = fr.float()
		}
		for c := 0; c < m.channels; c++ {
			md.Min[c] = fr.float()
		}
		for i := range md.Texture {
			md.Texture[i] = fr.float()
		}
		md.Weight = fr.float()
		md.MaxWeight = fr.float()
		md.Layer = fr.int()
		md.FirstSeen = fr.uint()
		md.LastSeen = fr.uint()
		md.Matches = fr.uint()
		md.PromotedAt = fr.uint()
	}
	pendingFrames, pendingMode := fr.int(), fr.int()
	if fr.err != nil {
		return fr.err
	}
	if fr.pos != len(fr.tok) {
		return fmt.Errorf("%d trailing fields", len(fr.tok)-fr.pos)
	}
	if pendingMode != noPending && (pendingMode < 0 || pendingMode >= slots || !used[pendingMode]) {
		return fmt.Errorf("pending mode %d is not active", pendingMode)
	}

	px.Active, px.Reliable, px.CurrentLayer = active, reliable, current
	px.pendingFrames, px.pendingMode = pendingFrames, pendingMode

	if active > 0 {
		var sum float32
		for r := 0; r < active; r++ {
			sum += modes[px.Rank[r]].Weight
		}
		if !(math32.Abs(sum-1) <= WeightTolerance) {
			return fmt.Errorf("weights sum to %g", sum)
		}
	}
	return checkLayers(px, modes)
}

// resize reallocates every pixel with n mode slots, keeping the n
// highest-ranked modes and renumbering layers to stay contiguous.
func (m *Model) resize(n int) {
	pixels, modes, tex := allocate(m.width*m.height, n, m.descLen)
	oldN := m.params.MaxModes
	for i := range m.pixels {
		src := &m.pixels[i]
		srcModes := m.modes[i*oldN : (i+1)*oldN]
		dst := &pixels[i]
		dstModes := modes[i*n : (i+1)*n]

		keep := src.Active
		if keep > n {
			keep = n
		}
		for r := 0; r < keep; r++ {
			from := &srcModes[src.Rank[r]]
			to := &dstModes[r]
			view := to.Texture
			*to = *from
			to.Texture = view
			copy(to.Texture, from.Texture)
			if src.pendingMode == int(src.Rank[r]) {
				dst.pendingMode = r
				dst.pendingFrames = src.pendingFrames
			}
		}
		dst.Active = keep
		dst.CurrentLayer = src.CurrentLayer
		compactLayers(dst, dstModes)
		if keep < src.Active {
			normalize(dst, dstModes)
		}
		dst.Reliable = reliableCount(dst, dstModes, m.params.BackgroundModelPercent)
	}
	monitoring.Logf("[Model] migrated mode slots %d -> %d", oldN, n)
	m.pixels, m.modes, m.texture = pixels, modes, tex
	m.params.MaxModes = n
}

// compactLayers renumbers the distinct layers in use to 1..k, preserving order.
func compactLayers(px *Pixel, modes []Mode) {
	var layers []int
	for r := 0; r < px.Active; r++ {
		if l := modes[px.Rank[r]].Layer; l > 0 && !slices.Contains(layers, l) {
			layers = append(layers, l)
		}
	}
	slices.Sort(layers)
	for r := 0; r < px.Active; r++ {
		md := &modes[px.Rank[r]]
		if md.Layer > 0 {
			md.Layer = slices.Index(layers, md.Layer) + 1
		}
	}
	if px.CurrentLayer > 0 {
		px.CurrentLayer = slices.Index(layers, px.CurrentLayer) + 1
	}
}
