package spectest

import "testing"

// Every scenario here runs with collect-on-every-allocation, so any missing
// root or unprotected intermediate shows up as corrupted output.

func TestStressConcatenationChain(t *testing.T) {
	source := `
var s = "";
for (var i = 0; i < 20; i = i + 1) {
  s = s + "ab";
}
print s == "abababababababababababababababababababab";
`
	res := Run(t, Options{Source: source, StressGC: true})
	if !res.OK() {
		t.Fatalf("stress run failed: %v %q", res.CompileErrs, res.RuntimeErr)
	}
	if res.Stdout != "true\n" {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
}

func TestStressClosuresSurvive(t *testing.T) {
	source := `
fun makeCounter() {
  var i = 0;
  fun count() { i = i + 1; return i; }
  return count;
}
var c = makeCounter();
c(); c();
print c();
`
	res := Run(t, Options{Source: source, StressGC: true})
	if !res.OK() {
		t.Fatalf("stress run failed: %q", res.RuntimeErr)
	}
	if res.Stdout != "3\n" {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
}

func TestStressClassesAndInstances(t *testing.T) {
	source := `
class Node {
  init(v) { this.v = v; }
  label() { return "n" + this.v; }
}
var total = "";
for (var i = 0; i < 5; i = i + 1) {
  total = total + Node("x").label();
}
print total;
`
	res := Run(t, Options{Source: source, StressGC: true})
	if !res.OK() {
		t.Fatalf("stress run failed: %q", res.RuntimeErr)
	}
	if res.Stdout != "nxnxnxnxnx\n" {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
}

func TestStressInheritance(t *testing.T) {
	source := `
class A { greet() { print "A"; } }
class B < A { greet() { super.greet(); print "B"; } }
B().greet();
`
	res := Run(t, Options{Source: source, StressGC: true})
	if !res.OK() {
		t.Fatalf("stress run failed: %q", res.RuntimeErr)
	}
	if res.Stdout != "A\nB\n" {
		t.Fatalf("unexpected stdout %q", res.Stdout)
	}
}

func TestStressMatchesUnstressedOutput(t *testing.T) {
	source := `
fun fib(n) {
  if (n < 2) return n;
  return fib(n - 2) + fib(n - 1);
}
var words = "fib" + ":";
print words + " " + "8";
print fib(8);
`
	plain := Run(t, Options{Source: source})
	stressed := Run(t, Options{Source: source, StressGC: true})
	if !plain.OK() || !stressed.OK() {
		t.Fatalf("runs failed: %q / %q", plain.RuntimeErr, stressed.RuntimeErr)
	}
	if plain.Stdout != stressed.Stdout {
		t.Fatalf("stress changed behaviour: %q vs %q", plain.Stdout, stressed.Stdout)
	}
}
