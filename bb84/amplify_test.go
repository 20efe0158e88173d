package bb84

import "testing"

func TestAmplify(t *testing.T) {
	tcs := []struct {
		name   string
		key    string
		hexLen int
		want   SecretKey
	}{
		{"full", "1011", FullKeyHexLen, "3dd9c0995d54c0abd51a90f1d57b1ce77bc885fc8a7cea52dcad3c2540dda5ee"},
		{"short", "1011", ShortKeyHexLen, "3dd9c0995d54c0ab"},
		{"empty key", "", ShortKeyHexLen, "e3b0c44298fc1c14"},
		{"whole digest", "11", 0, "4fc82b26aecb47d2868c4efbe3581732a3e7cbcc6c2efb32062c08170a05eeb8"},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if got := Amplify(mustDense(t, tc.key), tc.hexLen); got != tc.want {
				t.Errorf("Amplify(%s, %d) == %s, want %s", tc.key, tc.hexLen, got, tc.want)
			}
		})
	}
}

func TestAmplifyDeterministic(t *testing.T) {
	src := SeededSource(12)
	key := src.Bits(257)
	a := Amplify(key, FullKeyHexLen)
	b := Amplify(key.Clone(), FullKeyHexLen)
	if a != b {
		t.Fatalf("identical keys amplified to %s and %s", a, b)
	}
	for _, i := range []int{0, 128, 256} {
		flipped := key.Clone()
		flipped.Flip(i)
		if Amplify(flipped, FullKeyHexLen) == a {
			t.Errorf("flipping bit %d left the secret key unchanged", i)
		}
	}
}
