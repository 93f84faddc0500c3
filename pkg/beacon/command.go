package beacon

import (
	"fmt"
	"sort"
	"strings"

	"github.com/penshort/beacon/internal/model"
)

// CommandKind selects the operation a Command performs.
type CommandKind int

const (
	CmdUnknown CommandKind = iota
	CmdAddEvent
	CmdStartEvent
	CmdEndEvent
	CmdCancelEvent
	CmdRecordView
	CmdSetUserDetails
	CmdUserDataOp
	CmdBeginSession
	CmdSessionDuration
	CmdEndSession
	CmdChangeID
	CmdAddConsent
	CmdRemoveConsent
)

var commandNames = map[CommandKind]string{
	CmdUnknown:         "unknown",
	CmdAddEvent:        "add_event",
	CmdStartEvent:      "start_event",
	CmdEndEvent:        "end_event",
	CmdCancelEvent:     "cancel_event",
	CmdRecordView:      "track_pageview",
	CmdSetUserDetails:  "user_details",
	CmdUserDataOp:      "userData",
	CmdBeginSession:    "begin_session",
	CmdSessionDuration: "session_duration",
	CmdEndSession:      "end_session",
	CmdChangeID:        "change_id",
	CmdAddConsent:      "add_consent",
	CmdRemoveConsent:   "remove_consent",
}

var commandsByName = func() map[string]CommandKind {
	m := make(map[string]CommandKind, len(commandNames))
	for k, v := range commandNames {
		if k != CmdUnknown {
			m[v] = k
		}
	}
	return m
}()

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// User data operators accepted by CmdUserDataOp.
const (
	OpSet         = "set"
	OpUnset       = "unset"
	OpSetOnce     = "set_once"
	OpIncrement   = "increment"
	OpIncrementBy = "increment_by"
	OpMultiply    = "multiply"
	OpMax         = "max"
	OpMin         = "min"
	OpPush        = "push"
	OpPushUnique  = "push_unique"
	OpPull        = "pull"
	OpSave        = "save"
)

// Command is a deferred SDK call. Only the fields of its Kind are read.
type Command struct {
	Kind CommandKind
	// Target is the instance namespace. Empty addresses the default instance.
	Target string

	Event    Event         // AddEvent, EndEvent
	Key      string        // StartEvent, CancelEvent, UserDataOp
	Name     string        // RecordView; the method name for Unknown
	Segments *Segmentation // RecordView
	User     UserDetails   // SetUserDetails
	Op       string        // UserDataOp
	Value    any           // UserDataOp
	DeviceID string        // ChangeID
	Merge    bool          // ChangeID
	Features []string      // AddConsent, RemoveConsent
}

// Apply runs the command against inst.
func (c Command) Apply(inst *Instance) error {
	if inst.isClosed() {
		return ErrInstanceClosed
	}
	switch c.Kind {
	case CmdAddEvent:
		inst.AddEvent(c.Event)
	case CmdStartEvent:
		inst.StartEvent(c.Key)
	case CmdEndEvent:
		inst.EndEventWith(c.Event)
	case CmdCancelEvent:
		inst.CancelEvent(c.Key)
	case CmdRecordView:
		inst.RecordView(c.Name, c.Segments)
	case CmdSetUserDetails:
		inst.UserDetails(c.User)
	case CmdUserDataOp:
		return applyUserOp(inst.UserData(), c.Op, c.Key, c.Value)
	case CmdBeginSession:
		inst.BeginSession()
	case CmdSessionDuration:
		inst.SessionDuration()
	case CmdEndSession:
		inst.EndSession()
	case CmdChangeID:
		inst.ChangeID(c.DeviceID, c.Merge)
	case CmdAddConsent:
		inst.AddConsent(c.Features...)
	case CmdRemoveConsent:
		inst.RemoveConsent(c.Features...)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, c.Name)
	}
	return nil
}

func applyUserOp(u *UserData, op, key string, value any) error {
	switch op {
	case OpSet:
		u.Set(key, value)
	case OpUnset:
		u.Unset(key)
	case OpSetOnce:
		u.SetOnce(key, value)
	case OpIncrement:
		u.Increment(key)
	case OpIncrementBy:
		u.IncrementBy(key, value)
	case OpMultiply:
		u.Multiply(key, value)
	case OpMax:
		u.Max(key, value)
	case OpMin:
		u.Min(key, value)
	case OpPush:
		u.Push(key, value)
	case OpPushUnique:
		u.PushUnique(key, value)
	case OpPull:
		u.Pull(key, value)
	case OpSave:
		u.Save()
	default:
		return fmt.Errorf("%w: userData.%s", ErrUnknownCommand, op)
	}
	return nil
}

// ParseCommand builds a Command from a raw call tuple such as
// ["add_event", {"key": "click"}]. A leading element that is not a method
// name addresses an instance: ["app-2", "begin_session"]. User data calls
// use the "userData.<op>" method form. Unknown methods yield a CmdUnknown
// command together with ErrUnknownCommand.
func ParseCommand(args []any) (Command, error) {
	if len(args) == 0 {
		return Command{}, fmt.Errorf("%w: empty call", ErrUnknownCommand)
	}
	var cmd Command
	method, ok := args[0].(string)
	if !ok {
		return Command{}, fmt.Errorf("%w: method must be a string", ErrUnknownCommand)
	}
	if !isMethod(method) && len(args) > 1 {
		if next, ok := args[1].(string); ok {
			cmd.Target = method
			method = next
			args = args[1:]
		}
	}
	rest := args[1:]
	arg := func(n int) any {
		if n < len(rest) {
			return rest[n]
		}
		return nil
	}

	if op, ok := strings.CutPrefix(method, "userData."); ok {
		cmd.Kind = CmdUserDataOp
		cmd.Op = op
		cmd.Key, _ = arg(0).(string)
		cmd.Value = arg(1)
		return cmd, nil
	}

	kind, known := commandsByName[method]
	if !known {
		cmd.Kind = CmdUnknown
		cmd.Name = method
		return cmd, fmt.Errorf("%w: %s", ErrUnknownCommand, method)
	}
	cmd.Kind = kind

	switch kind {
	case CmdAddEvent, CmdEndEvent:
		switch v := arg(0).(type) {
		case string:
			cmd.Event = Event{Key: v}
		case map[string]any:
			cmd.Event = eventFromMap(v)
		}
	case CmdStartEvent, CmdCancelEvent:
		cmd.Key, _ = arg(0).(string)
	case CmdRecordView:
		cmd.Name, _ = arg(0).(string)
		if m, ok := arg(1).(map[string]any); ok {
			cmd.Segments = model.SegmentationFromMap(m)
		}
	case CmdSetUserDetails:
		if m, ok := arg(0).(map[string]any); ok {
			cmd.User = userFromMap(m)
		}
	case CmdChangeID:
		cmd.DeviceID, _ = arg(0).(string)
		cmd.Merge, _ = arg(1).(bool)
	case CmdAddConsent, CmdRemoveConsent:
		cmd.Features = stringList(rest)
	}
	return cmd, nil
}

func isMethod(name string) bool {
	if _, ok := commandsByName[name]; ok {
		return true
	}
	return strings.HasPrefix(name, "userData.")
}

func eventFromMap(m map[string]any) Event {
	e := Event{}
	e.Key, _ = m["key"].(string)
	if c, ok := toFloat(m["count"]); ok {
		e.Count = int(c)
	}
	if s, ok := toFloat(m["sum"]); ok {
		e.Sum = model.Float(s)
	}
	if d, ok := toFloat(m["dur"]); ok {
		e.Dur = model.Float(d)
	}
	if seg, ok := m["segmentation"].(map[string]any); ok {
		e.Segmentation = model.SegmentationFromMap(seg)
	}
	return e
}

func userFromMap(m map[string]any) UserDetails {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	d := UserDetails{
		Name:         str(model.UserName),
		Username:     str(model.UserUsername),
		Email:        str(model.UserEmail),
		Organization: str(model.UserOrganization),
		Phone:        str(model.UserPhone),
		Picture:      str(model.UserPicture),
		Gender:       str(model.UserGender),
	}
	if y, ok := toFloat(m[model.UserBirthYear]); ok {
		d.BirthYear = int(y)
	}
	if custom, ok := m[model.UserCustom].(map[string]any); ok {
		d.Custom = custom
	}
	return d
}

// stringList flattens string and []string/[]any arguments, sorted and
// without duplicates.
func stringList(args []any) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, a := range args {
		switch v := a.(type) {
		case string:
			add(v)
		case []string:
			for _, s := range v {
				add(s)
			}
		case []any:
			for _, s := range v {
				if str, ok := s.(string); ok {
					add(str)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
