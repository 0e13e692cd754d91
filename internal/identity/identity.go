// Package identity obtains the cryptographic peer identifier of every host
// by running the peer binary in its key generation mode.
package identity

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"

	"github.com/libp2p/go-libp2p/core/peer"

	"wanemu/internal/emulation"
	"wanemu/internal/logging"
)

// Identities maps host ids to peer identifiers.
type Identities map[int]peer.ID

// Get returns the identifier of id.
func (ids Identities) Get(id int) (peer.ID, bool) {
	p, ok := ids[id]
	return p, ok
}

// Missing lists the hosts in want without an identifier, sorted.
func (ids Identities) Missing(want []int) []int {
	var out []int
	for _, id := range want {
		if _, ok := ids[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// Strings renders the mapping with string identifiers, as stored in
// manifests.
func (ids Identities) Strings() map[int]string {
	out := make(map[int]string, len(ids))
	for k, v := range ids {
		out[k] = v.String()
	}
	return out
}

var (
	pairLine   = regexp.MustCompile(`^\s*(\d+)\s*:\s*(\S+)\s*$`)
	legacyLine = regexp.MustCompile(`^\s*Node\s+(\d+)\s+peer ID:\s*(\S+)\s*$`)
)

// Parse reads `<id>:<identifier>` or `Node <id> peer ID: <identifier>`
// lines. Other lines are ignored. A matching line whose identifier does not
// decode is an error.
func Parse(r io.Reader) (Identities, error) {
	ids := make(Identities)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		m := pairLine.FindStringSubmatch(text)
		if m == nil {
			m = legacyLine.FindStringSubmatch(text)
		}
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pid, err := peer.Decode(m[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: node %d: %w", line, id, err)
		}
		ids[id] = pid
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// GenerateCommand is the key generation invocation for hosts up to max.
func GenerateCommand(binary string, max int) emulation.Command {
	return emulation.Cmd(binary, "-generate", "-node", strconv.Itoa(max))
}

// Provider runs the peer binary to generate identities.
type Provider struct {
	Binary string
	Runner emulation.Runner
}

// Generate returns identities for every id in participants. A failing
// binary, unparseable output or any participant left without an identity
// fails the whole call.
func (p *Provider) Generate(ctx context.Context, participants []int) (Identities, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("no participants to generate identities for")
	}
	max := participants[0]
	for _, id := range participants[1:] {
		if id > max {
			max = id
		}
	}
	cmd := GenerateCommand(p.Binary, max)
	logging.FromContext(ctx).Info("generating peer identities", "cmd", cmd.String())
	out, err := p.Runner.Output(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("generate identities: %w", err)
	}
	ids, err := Parse(bytes.NewReader(out))
	if err != nil {
		return nil, &emulation.ExternalToolError{Cmd: cmd, Output: string(out), Err: err}
	}
	if missing := ids.Missing(participants); len(missing) > 0 {
		return nil, &emulation.ExternalToolError{Cmd: cmd, Err: fmt.Errorf("no identity for nodes %v", missing)}
	}
	return ids, nil
}
