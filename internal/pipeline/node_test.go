package pipeline

import (
	"errors"
	"reflect"
	"testing"

	"defiFetch/internal/config"
	"defiFetch/internal/model"
)

const (
	testPool  = "0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640"
	testProxy = "0xc36442b4a4522e871399cd717abdd847ab11fe88"
)

func names(nodes []Node) []string {
	out := make([]string, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, node.Name())
	}
	return out
}

func TestOrderPerOutput(t *testing.T) {
	cases := []struct {
		output string
		want   []string
	}{
		{config.OutputRaw, []string{"raw"}},
		{config.OutputTick, []string{"pool", "tick"}},
		{config.OutputMinute, []string{"pool", "tick", "minute"}},
		{config.OutputPosition, []string{"proxy", "pool", "tick", "position"}},
	}
	for _, tc := range cases {
		t.Run(tc.output, func(t *testing.T) {
			root, err := BuildGraph(tc.output, Target{Pool: testPool, Proxy: testProxy, FeeTier: 500})
			if err != nil {
				t.Fatalf("BuildGraph: %v", err)
			}
			order, err := Order(root)
			if err != nil {
				t.Fatalf("Order: %v", err)
			}
			if got := names(order); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("order mismatch: got %v want %v", got, tc.want)
			}
		})
	}
}

func TestOrderSharedDependency(t *testing.T) {
	shared := NewSourceNode("shared", model.ContractConfig{Address: testPool})
	left := NewTransformNode("left", testPool, nil, shared)
	right := NewTransformNode("right", testPool, nil, shared)
	root := NewTransformNode("root", testPool, nil, left, right, shared)

	order, err := Order(root)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	got := names(order)
	if len(got) != 4 {
		t.Fatalf("expected each node once, got %v", got)
	}
	pos := make(map[string]int)
	for i, name := range got {
		pos[name] = i
	}
	if pos["shared"] > pos["left"] || pos["shared"] > pos["right"] || pos["root"] != 3 {
		t.Fatalf("dependency ordering violated: %v", got)
	}
}

func TestOrderCycle(t *testing.T) {
	a := NewTransformNode("a", testPool, nil)
	b := NewTransformNode("b", testPool, nil, a)
	a.deps = []Node{b}

	if _, err := Order(b); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}

	self := NewTransformNode("self", testPool, nil)
	self.deps = []Node{self}
	if _, err := Order(self); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle for self dependency, got %v", err)
	}
}

func TestBuildGraphErrors(t *testing.T) {
	if _, err := BuildGraph("tvl", Target{Pool: testPool}); !errors.Is(err, config.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if _, err := BuildGraph(config.OutputPosition, Target{Pool: testPool}); err == nil {
		t.Fatalf("expected error without proxy")
	}
	if _, err := BuildGraph(config.OutputRaw, Target{}); err == nil {
		t.Fatalf("expected error without pool")
	}
}

func TestBuildGraphTopics(t *testing.T) {
	root, err := BuildGraph(config.OutputTick, Target{Pool: "0x88E6A0c2dDD26FEEb64F039a2c41296FcB3f5640"})
	if err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}
	source, ok := root.Dependencies()[0].(*SourceNode)
	if !ok {
		t.Fatalf("expected source dependency, got %T", root.Dependencies()[0])
	}
	if source.Contract.Address != testPool {
		t.Fatalf("expected lowercase pool address, got %s", source.Contract.Address)
	}
	if len(source.Contract.Topics[0]) != 4 {
		t.Fatalf("expected the four pool event topics, got %v", source.Contract.Topics[0])
	}
}
