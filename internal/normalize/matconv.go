package normalize

import (
	"image"
	"runtime"
	"sync"

	"gocv.io/x/gocv"
)

// grayToMat converts an 8-bit grayscale Go image to a single-channel Mat
// (parallelized by horizontal stripes).
func grayToMat(img *image.Gray) gocv.Mat {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)

	numWorkers := runtime.NumCPU()
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		startY := w * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > height {
			endY = height
		}
		if startY >= height {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			for y := yStart; y < yEnd; y++ {
				rowOffset := (y+bounds.Min.Y-img.Rect.Min.Y)*img.Stride - img.Rect.Min.X
				for x := 0; x < width; x++ {
					mat.SetUCharAt(y, x, img.Pix[rowOffset+x+bounds.Min.X])
				}
			}
		}(startY, endY)
	}
	wg.Wait()

	return mat
}

// matToGray converts a single-channel Mat back to a Go grayscale image
// (parallelized by horizontal stripes).
func matToGray(mat gocv.Mat) *image.Gray {
	h := mat.Rows()
	w := mat.Cols()

	img := image.NewGray(image.Rect(0, 0, w, h))
	stride := img.Stride

	numWorkers := runtime.NumCPU()
	rowsPerWorker := (h + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for worker := 0; worker < numWorkers; worker++ {
		startY := worker * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > h {
			endY = h
		}
		if startY >= h {
			break
		}

		wg.Add(1)
		go func(yStart, yEnd int) {
			defer wg.Done()
			for y := yStart; y < yEnd; y++ {
				rowOffset := y * stride
				for x := 0; x < w; x++ {
					img.Pix[rowOffset+x] = mat.GetUCharAt(y, x)
				}
			}
		}(startY, endY)
	}
	wg.Wait()

	return img
}
