package driver

import (
	"sort"
	"strings"

	"github.com/pingcap/errors"
)

const namedPrefix = ":"

var (
	ErrMixedBind   = errors.New("positional and named bind parameters cannot be mixed")
	ErrMissingBind = errors.New("no value bound for named parameter")
)

// Bind holds the parameters of one statement, either positional or named.
type Bind struct {
	Args  []interface{}
	Named map[string]interface{}
}

func Positional(args ...interface{}) *Bind {
	return &Bind{Args: args}
}

func Named(values map[string]interface{}) *Bind {
	return &Bind{Named: values}
}

func (b *Bind) IsEmpty() bool {
	return b == nil || (len(b.Args) == 0 && len(b.Named) == 0)
}

// Normalize returns a copy of b whose named parameters all carry the ":" prefix.
// Positional parameters are passed through.
func (b *Bind) Normalize() *Bind {
	if b == nil {
		return &Bind{}
	}
	ret := &Bind{Args: b.Args}
	if len(b.Named) == 0 {
		return ret
	}
	ret.Named = make(map[string]interface{}, len(b.Named))
	for k, v := range b.Named {
		if !strings.HasPrefix(k, namedPrefix) {
			k = namedPrefix + k
		}
		ret.Named[k] = v
	}
	return ret
}

// Names returns the named parameter keys in a stable order.
func (b *Bind) Names() []string {
	if b == nil {
		return nil
	}
	names := make([]string, 0, len(b.Named))
	for k := range b.Named {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Expand rewrites ":name" placeholders of sql into "?" and returns the
// arguments in placeholder order. b must be normalized.
func (b *Bind) Expand(sql string) (string, []interface{}, error) {
	if b == nil {
		return sql, nil, nil
	}
	if len(b.Named) == 0 {
		return sql, b.Args, nil
	}
	if len(b.Args) != 0 {
		return "", nil, ErrMixedBind
	}

	var (
		sb    strings.Builder
		args  []interface{}
		quote byte
	)
	sb.Grow(len(sql))
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if quote != 0 {
			sb.WriteByte(c)
			if c == '\\' && quote != '`' && i+1 < len(sql) {
				i++
				sb.WriteByte(sql[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"' || c == '`':
			quote = c
			sb.WriteByte(c)
		case c == ':' && i+1 < len(sql) && isNameStart(sql[i+1]) && (i == 0 || sql[i-1] != ':'):
			j := i + 1
			for j < len(sql) && isNameChar(sql[j]) {
				j++
			}
			name := sql[i:j]
			v, ok := b.Named[name]
			if !ok {
				return "", nil, errors.WithMessage(ErrMissingBind, name)
			}
			args = append(args, v)
			sb.WriteByte('?')
			i = j - 1
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), args, nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
