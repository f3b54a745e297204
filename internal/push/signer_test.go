package push

import "testing"

func TestSignHMAC(t *testing.T) {
	got := SignHMAC("secret", "POST\n/hook\n1700000000\nnonce\nbodyhash")
	if len(got) != 64 { // hex-encoded sha256 length
		t.Fatalf("bad length: %s", got)
	}

	// 同输入同签名
	again := SignHMAC("secret", "POST\n/hook\n1700000000\nnonce\nbodyhash")
	if got != again {
		t.Fatalf("signature not deterministic: %s vs %s", got, again)
	}

	// 换密钥换签名
	other := SignHMAC("other-secret", "POST\n/hook\n1700000000\nnonce\nbodyhash")
	if got == other {
		t.Fatal("different secrets produced the same signature")
	}
}

func TestBuildCanonical(t *testing.T) {
	got := buildCanonical("post", "/hook", 1700000000, "abcd1234", "deadbeef")
	want := "POST\n/hook\n1700000000\nabcd1234\ndeadbeef"
	if got != want {
		t.Fatalf("canonical mismatch:\n%q\nwant\n%q", got, want)
	}
}
