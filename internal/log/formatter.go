package log

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type formatter struct {
	pattern string
	time    string
}

// Format renders an entry through the pattern. Supported verbs: %time,
// %level, %field, %msg, %caller, %func, %goroutine.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	output := f.pattern
	output = strings.Replace(output, "%time", entry.Time.Format(f.time), 1)
	output = strings.Replace(output, "%level", strings.ToUpper(entry.Level.String()), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	output = strings.Replace(output, "%msg", entry.Message, 1)
	if strings.Contains(output, "%caller") {
		output = strings.Replace(output, "%caller", getCaller(entry), 1)
	}
	if strings.Contains(output, "%func") {
		output = strings.Replace(output, "%func", getFunc(entry), 1)
	}
	if strings.Contains(output, "%goroutine") {
		output = strings.Replace(output, "%goroutine", getGoroutineID(), 1)
	}
	return []byte(output), nil
}

// getCaller returns pkg/file.go:line of the logging call.
func getCaller(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	file := entry.Caller.File
	if i := strings.LastIndex(file, "/"); i != -1 {
		file = file[i+1:]
	}
	pkg := ""
	if fn := entry.Caller.Function; fn != "" {
		if i := strings.LastIndex(fn, "/"); i != -1 {
			fn = fn[i+1:]
		}
		pkg, _, _ = strings.Cut(fn, ".")
	}
	return fmt.Sprintf("%s/%s:%d", pkg, file, entry.Caller.Line)
}

func getFunc(entry *logrus.Entry) string {
	if !entry.HasCaller() {
		return "unknown"
	}
	name := entry.Caller.Function
	if i := strings.LastIndex(name, "."); i != -1 {
		return name[i+1:]
	}
	return name
}

func getGoroutineID() string {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	stack := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if id := strings.Fields(stack); len(id) > 0 {
		return id[0]
	}
	return "unknown"
}

// buildFields renders entry data as sorted key=value pairs.
func buildFields(entry *logrus.Entry) string {
	fields := make([]string, 0, len(entry.Data))
	for key, val := range entry.Data {
		if err, ok := val.(error); ok {
			val = err.Error()
		}
		fields = append(fields, key+"="+fmt.Sprint(val))
	}
	sort.Strings(fields)
	return strings.Join(fields, ",")
}
