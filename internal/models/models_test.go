package models

import "testing"

func TestProjectOutputChecks(t *testing.T) {
	url := "https://cdn.example.com/generated.png"
	empty := ""

	tests := []struct {
		name      string
		image     *string
		video     *string
		wantImage bool
		wantVideo bool
	}{
		{"fresh project", nil, nil, false, false},
		{"empty strings", &empty, &empty, false, false},
		{"image only", &url, nil, true, false},
		{"image and video", &url, &url, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project{GeneratedImage: tt.image, GeneratedVideo: tt.video}
			if got := p.HasImage(); got != tt.wantImage {
				t.Errorf("HasImage() = %v, want %v", got, tt.wantImage)
			}
			if got := p.HasVideo(); got != tt.wantVideo {
				t.Errorf("HasVideo() = %v, want %v", got, tt.wantVideo)
			}
		})
	}
}
