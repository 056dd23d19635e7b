package builder

import (
	"fmt"
	"strconv"
	"unicode"

	"github.com/paulmach/orb"
)

// parsePathData flattens SVG path data into one line string per subpath.
// Supported commands: M L H V C S Q T Z, absolute and relative. Arcs are not
// produced by the tracing export and are rejected.
func parsePathData(d string, f flattener) ([]orb.LineString, error) {
	toks, err := tokenize(d)
	if err != nil {
		return nil, err
	}

	var (
		out       []orb.LineString
		cur       orb.LineString
		pos       orb.Point
		start     orb.Point
		lastCtrl  orb.Point
		lastCmd   byte
		cmd       byte
		i         int
		haveStart bool
	)

	flush := func() {
		if len(cur) >= 2 {
			out = append(out, cur)
		}
		cur = nil
	}
	num := func() (float64, error) {
		if i >= len(toks) || toks[i].isCmd {
			return 0, fmt.Errorf("command %c: missing argument", cmd)
		}
		v := toks[i].val
		i++
		return v, nil
	}
	pt := func(rel bool) (orb.Point, error) {
		x, err := num()
		if err != nil {
			return orb.Point{}, err
		}
		y, err := num()
		if err != nil {
			return orb.Point{}, err
		}
		if rel {
			return orb.Point{pos[0] + x, pos[1] + y}, nil
		}
		return orb.Point{x, y}, nil
	}

	for i < len(toks) {
		if toks[i].isCmd {
			cmd = toks[i].cmd
			i++
		} else if cmd == 0 {
			return nil, fmt.Errorf("path data must start with a command")
		}
		rel := unicode.IsLower(rune(cmd))
		upper := byte(unicode.ToUpper(rune(cmd)))

		if upper != 'M' && upper != 'Z' && !haveStart {
			return nil, fmt.Errorf("command %c before moveto", cmd)
		}

		switch upper {
		case 'M':
			p, err := pt(rel)
			if err != nil {
				return nil, err
			}
			flush()
			pos, start, haveStart = p, p, true
			cur = orb.LineString{p}
			// implicit repetition after a moveto is a lineto
			if rel {
				cmd = 'l'
			} else {
				cmd = 'L'
			}
		case 'L':
			p, err := pt(rel)
			if err != nil {
				return nil, err
			}
			cur = append(cur, p)
			pos = p
		case 'H':
			x, err := num()
			if err != nil {
				return nil, err
			}
			if rel {
				x += pos[0]
			}
			pos = orb.Point{x, pos[1]}
			cur = append(cur, pos)
		case 'V':
			y, err := num()
			if err != nil {
				return nil, err
			}
			if rel {
				y += pos[1]
			}
			pos = orb.Point{pos[0], y}
			cur = append(cur, pos)
		case 'C', 'S':
			var c1 orb.Point
			if upper == 'S' {
				c1 = pos
				if lastCmd == 'C' || lastCmd == 'S' {
					c1 = orb.Point{2*pos[0] - lastCtrl[0], 2*pos[1] - lastCtrl[1]}
				}
			} else {
				p, err := pt(rel)
				if err != nil {
					return nil, err
				}
				c1 = p
			}
			c2, err := pt(rel)
			if err != nil {
				return nil, err
			}
			end, err := pt(rel)
			if err != nil {
				return nil, err
			}
			cur = append(cur, f.cubic(pos, c1, c2, end)[1:]...)
			lastCtrl, pos = c2, end
		case 'Q', 'T':
			var c orb.Point
			if upper == 'T' {
				c = pos
				if lastCmd == 'Q' || lastCmd == 'T' {
					c = orb.Point{2*pos[0] - lastCtrl[0], 2*pos[1] - lastCtrl[1]}
				}
			} else {
				p, err := pt(rel)
				if err != nil {
					return nil, err
				}
				c = p
			}
			end, err := pt(rel)
			if err != nil {
				return nil, err
			}
			cur = append(cur, f.quadratic(pos, c, end)[1:]...)
			lastCtrl, pos = c, end
		case 'Z':
			if haveStart && pos != start {
				cur = append(cur, start)
			}
			pos = start
			flush()
			cur = orb.LineString{start}
			cmd = 0
		default:
			return nil, fmt.Errorf("unsupported path command %c", cmd)
		}
		lastCmd = upper
	}
	flush()
	return out, nil
}

type token struct {
	isCmd bool
	cmd   byte
	val   float64
}

func tokenize(d string) ([]token, error) {
	var toks []token
	for i := 0; i < len(d); {
		c := d[i]
		switch {
		case c == ' ' || c == ',' || c == '\t' || c == '\n' || c == '\r':
			i++
		case isCommand(c):
			toks = append(toks, token{isCmd: true, cmd: c})
			i++
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			j := scanNumber(d, i)
			v, err := strconv.ParseFloat(d[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q in path data", d[i:j])
			}
			toks = append(toks, token{val: v})
			i = j
		default:
			return nil, fmt.Errorf("unexpected %q in path data", c)
		}
	}
	return toks, nil
}

func isCommand(c byte) bool {
	switch c {
	case 'M', 'm', 'L', 'l', 'H', 'h', 'V', 'v', 'C', 'c', 'S', 's', 'Q', 'q', 'T', 't', 'Z', 'z', 'A', 'a':
		return true
	}
	return false
}

// scanNumber returns the end of the number starting at i. SVG allows
// "1.5.5" and "3-2" without separators, so a second dot or a sign outside an
// exponent starts a new number.
func scanNumber(d string, i int) int {
	j := i
	if d[j] == '-' || d[j] == '+' {
		j++
	}
	seenDot, seenExp := false, false
	for j < len(d) {
		c := d[j]
		switch {
		case c >= '0' && c <= '9':
			j++
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
			j++
		case (c == 'e' || c == 'E') && !seenExp && j > i:
			seenExp = true
			j++
			if j < len(d) && (d[j] == '-' || d[j] == '+') {
				j++
			}
		default:
			return j
		}
	}
	return j
}
