package descriptor

import (
	"os"
	"testing"
)

func TestBuildImageMissingEnvVar(t *testing.T) {
	os.Unsetenv("TEST_BUILD_DESCRIPTOR")
	if _, err := BuildImage("TEST_BUILD_DESCRIPTOR"); err == nil {
		t.Fatal("expected an error for a missing environment variable")
	}
}

func TestBuildImageReadsFromEnvVar(t *testing.T) {
	const envVar = "TEST_BUILD_DESCRIPTOR"
	os.Setenv(envVar, `{"spec":{"strategy":{"customStrategy":{"from":{"kind":"DockerImage","name":"registry.example.com/builder:latest"}}}}}`)
	defer os.Unsetenv(envVar)

	image, err := BuildImage(envVar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if image != "registry.example.com/builder:latest" {
		t.Fatalf("unexpected image: %q", image)
	}
}

func TestParseBuildImageRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseBuildImage([]byte("not json")); err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}

func TestParseBuildImageRequiresFromFields(t *testing.T) {
	if _, err := ParseBuildImage([]byte(`{"spec":{"strategy":{"customStrategy":{}}}}`)); err == nil {
		t.Fatal("expected an error when from.kind/from.name are missing")
	}
}

func TestParseBuildImageRejectsNonDockerImageKind(t *testing.T) {
	raw := []byte(`{"spec":{"strategy":{"customStrategy":{"from":{"kind":"ImageStreamTag","name":"builder:latest"}}}}}`)
	if _, err := ParseBuildImage(raw); err == nil {
		t.Fatal("expected an error for a non-DockerImage strategy kind")
	}
}
