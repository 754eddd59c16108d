package cmn

import "github.com/golang/glog"

// Thin leveled-logging façade over glog, matching the teacher's convention
// of calling glog.Infof/Warningf/Errorf directly from every package rather
// than threading a logger value through constructors.

func Infof(format string, args ...interface{})    { glog.Infof(format, args...) }
func Warningf(format string, args ...interface{}) { glog.Warningf(format, args...) }
func Errorf(format string, args ...interface{})   { glog.Errorf(format, args...) }

// Flush flushes buffered log entries; called on graceful shutdown.
func Flush() { glog.Flush() }
