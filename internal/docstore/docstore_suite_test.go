package docstore_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDocstore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Document Store Suite")
}
