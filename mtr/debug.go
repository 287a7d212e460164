//go:build !mtrrelease

// Memo introspection and state dumps. Build with -tags mtrrelease to leave
// them out.

package mtr

import (
	"fmt"
	"strings"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/wilhasse/innodb-mtr/ut"
)

// String summarizes the mini-transaction state.
func (m *Mtr) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mtr %s mode %s slots %d live %d recs %d len %d",
		m.state, m.logMode, m.memo.Len(), m.memo.Live(), m.log.NRecs(), m.log.TotalLength())
	if m.modifications {
		b.WriteString(" modified")
	}
	if m.madeDirty {
		b.WriteString(" dirty")
	}
	if m.userSpace != nil {
		fmt.Fprintf(&b, " space %d", m.userSpace.ID)
	}
	return b.String()
}

// Print writes the state and memo contents to log at debug level. A nil
// log means the package logger.
func (m *Mtr) Print(log *tools.Nixomosetools_logger) {
	if log == nil {
		log = ut.Logger()
	}
	log.Debug(m.String())
	for i := m.memo.Len() - 1; i >= 0; i-- {
		slot := m.memo.Slot(i)
		log.Debug(fmt.Sprintf("  slot %d %s %s", i, slot.Type, m.slotName(slot)))
	}
}

// MemoContainsPageFlagged returns the page whose frame contains ptr and
// that is held with any type in flags, or nil.
func (m *Mtr) MemoContainsPageFlagged(ptr []byte, flags MemoType) Page {
	i := m.findFrame(ptr, flags)
	if i < 0 {
		return nil
	}
	return m.memo.Slot(i).Object.(Page)
}
