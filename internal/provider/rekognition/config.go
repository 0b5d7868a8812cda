package rekognition

// Config holds configuration for the AWS Rekognition detection backend.
type Config struct {
	// Region is the AWS region where the Rekognition service is called
	// (e.g., "eu-central-1").
	Region string

	// MinConfidence filters Rekognition detections below this percentage
	// before they reach the detector chain. Rekognition reports confidence
	// as 0-100.
	MinConfidence float64
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Region:        "us-east-1",
		MinConfidence: 40,
	}
}
