package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"
)

// EnvPrefix — переменные окружения с этим префиксом доступны шаблонам
// как {{ .Env.NAME }} (без префикса).
const EnvPrefix = "CRONQUEUE_VAR_"

// Vars — данные, доступные шаблонам.
//
//   - {{ .JobID }}, {{ .JobName }}
//   - {{ .ExecutionID }}
//   - {{ .ScheduledTime }} (time.Time, UTC)
//   - {{ .Attempt }} (с 1)
//   - {{ .Env.NAME }} (отсутствующий ключ — ошибка рендера)
//   - {{ env "NAME" }} (отсутствующий ключ — пустая строка, для default)
type Vars struct {
	JobID         string
	JobName       string
	ExecutionID   string
	ScheduledTime time.Time
	Attempt       int
	Env           map[string]string
}

// EnvFromOS собирает переменные окружения с префиксом EnvPrefix.
func EnvFromOS() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		env[strings.TrimPrefix(key, EnvPrefix)] = value
	}
	return env
}

// lookupEnv возвращает переменную окружения шаблона или "", если её нет.
func (v *Vars) lookupEnv(name string) string {
	if v == nil {
		return ""
	}
	return v.Env[name]
}

// templateFuncs — дополнительные функции для шаблонов.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — возвращает значение по умолчанию, если первый аргумент пустой
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	// date — форматирует время: {{ date "2006-01-02" .ScheduledTime }}
	"date": func(layout string, t time.Time) string {
		return t.UTC().Format(layout)
	},

	// unix — время в секундах Unix
	"unix": func(t time.Time) int64 {
		return t.Unix()
	},

	// shift — сдвигает время: {{ shift "-24h" .ScheduledTime }}
	"shift": func(d string, t time.Time) (time.Time, error) {
		dur, err := time.ParseDuration(d)
		if err != nil {
			return time.Time{}, err
		}
		return t.Add(dur), nil
	},

	"lower":   strings.ToLower,
	"upper":   strings.ToUpper,
	"trim":    strings.TrimSpace,
	"replace": strings.ReplaceAll,
}

// Render рендерит строковый шаблон.
func Render(tmpl string, vars *Vars) (string, error) {
	// Проверяем, содержит ли строка шаблонные выражения
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").
		Option("missingkey=error").
		Funcs(templateFuncs).
		Funcs(template.FuncMap{"env": vars.lookupEnv}).
		Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	return buf.String(), nil
}

// RenderValue рендерит произвольное значение из JSON.
// Рекурсивно обрабатывает map и slice, ключи не трогает.
func RenderValue(value any, vars *Vars) (any, error) {
	switch v := value.(type) {
	case string:
		return Render(v, vars)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, vars)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, vars)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			result[i] = rendered
		}
		return result, nil

	default:
		// Числа, bool и null возвращаем как есть
		return value, nil
	}
}

// Config рендерит сырой JSON config задачи.
//
// Если в config нет "{{", возвращает его без изменений.
func Config(raw json.RawMessage, vars *Vars) (json.RawMessage, error) {
	if !bytes.Contains(raw, []byte("{{")) {
		return raw, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}

	rendered, err := RenderValue(doc, vars)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(rendered)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return out, nil
}
