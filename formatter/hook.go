package formatter

import (
	"fmt"
	"path"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// ContextHook is a custom hook for add the source information for the entry
type ContextHook struct {
	// roots are tried in order, the source is reported relative to the last occurrence of the first match
	roots []string
}

// NewContextHook instantiate a new context hook
func NewContextHook() *ContextHook {
	return &ContextHook{
		roots: []string{moduleName() + "/", "wgpeer/"},
	}
}

// Levels set the supported levels for this hook
func (hook ContextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire extend with the source information the entry.Data
func (hook ContextHook) Fire(entry *logrus.Entry) error {
	if !entry.HasCaller() {
		return nil
	}
	entry.Data[sourceKey] = fmt.Sprintf("%s:%d", hook.parseSrc(entry.Caller.File), entry.Caller.Line)
	return nil
}

func moduleName() string {
	info, ok := debug.ReadBuildInfo()
	if ok && info.Main.Path != "" {
		return info.Main.Path
	}

	return "github.com/netbirdio/wgpeer"
}

func (hook ContextHook) parseSrc(filePath string) string {
	for _, root := range hook.roots {
		if i := strings.LastIndex(filePath, root); i >= 0 {
			return filePath[i+len(root):]
		}
	}

	// outside the module keep the package directory and the file
	_, pkg := path.Split(path.Dir(filePath))
	return pkg + "/" + path.Base(filePath)
}
