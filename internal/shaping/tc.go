package shaping

import (
	"fmt"
	"net/netip"
	"strconv"

	"wanemu/internal/emulation"
)

// Class and handle numbers. Minor 1 of the root is the default class; peer
// classes count up from firstPeerClass and reuse their number as the major
// handle of the attached netem qdisc.
const (
	rootHandle     = "1:"
	defaultClass   = 1
	firstPeerClass = 2
	maxClass       = 0xffff
)

func classID(n int) string { return fmt.Sprintf("1:%x", n) }

func tc(args ...string) emulation.Command { return emulation.Cmd("tc", args...) }

// ClearRoot removes any root qdisc on dev. tc fails when none exists; the
// caller ignores that failure.
func ClearRoot(dev string) emulation.Command {
	return tc("qdisc", "del", "dev", dev, "root")
}

// RootQdisc installs the HTB root sending unclassified traffic to the
// default class.
func RootQdisc(dev string) emulation.Command {
	return tc("qdisc", "add", "dev", dev, "root", "handle", rootHandle, "htb", "default", strconv.Itoa(defaultClass))
}

// Class adds an HTB class n under the root.
func Class(dev string, n int, rate string) emulation.Command {
	return tc("class", "add", "dev", dev, "parent", rootHandle, "classid", classID(n), "htb", "rate", rate)
}

// Netem attaches a delay-only netem qdisc to class n.
func Netem(dev string, n int, d Delay) emulation.Command {
	args := []string{"qdisc", "add", "dev", dev, "parent", classID(n), "handle", fmt.Sprintf("%x:", n), "netem", "delay", fmt.Sprintf("%dms", d.Millis)}
	if d.JitterMillis > 0 {
		args = append(args, fmt.Sprintf("%dms", d.JitterMillis))
	}
	return tc(args...)
}

// DstFilter classifies packets for dst into class n.
func DstFilter(dev string, n int, dst netip.Addr) emulation.Command {
	return tc("filter", "add", "dev", dev, "protocol", "ip", "parent", rootHandle, "prio", "1",
		"u32", "match", "ip", "dst", netip.PrefixFrom(dst, 32).String(), "flowid", classID(n))
}
